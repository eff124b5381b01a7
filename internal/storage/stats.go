// 文件: internal/storage/stats.go
package storage

import (
	"context"
	"fmt"
	"time"

	"image-compressor/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const dayLayout = "2006-01-02"

// AdminStats 统计用户数与压缩次数（总计/今日/昨日/本月）
func (s *MongoStorage) AdminStats(ctx context.Context, now time.Time) (*models.AdminStats, error) {
	startTime := time.Now()
	now = now.UTC()

	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	yesterday := today.AddDate(0, 0, -1)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	// 步骤1：用户数（按注册时间）
	users, err := s.countPeriods(ctx, collUsers, "joined_date",
		bson.M{},
		bson.M{"$gte": today},
		bson.M{"$gte": yesterday, "$lt": today},
		bson.M{"$gte": monthStart},
	)
	if err != nil {
		return nil, fmt.Errorf("统计用户失败: %w", err)
	}

	// 步骤2：压缩次数（按日统计文档求和）
	compressions, err := s.sumPeriods(ctx,
		bson.M{},
		bson.M{"date": today.Format(dayLayout)},
		bson.M{"date": yesterday.Format(dayLayout)},
		bson.M{"date": bson.M{"$gte": monthStart.Format(dayLayout)}},
	)
	if err != nil {
		return nil, fmt.Errorf("统计压缩次数失败: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "AdminStats",
		"took":   time.Since(startTime),
	}).Debug("管理员统计完成")

	return &models.AdminStats{
		Users:        users,
		Compressions: compressions,
		GeneratedAt:  now,
	}, nil
}

// countPeriods 依次统计总数与三个时间段内的文档数
func (s *MongoStorage) countPeriods(ctx context.Context, coll, field string, total, today, yesterday, month bson.M) (models.PeriodCounts, error) {
	var pc models.PeriodCounts
	filters := []bson.M{total, {field: today}, {field: yesterday}, {field: month}}
	targets := []*int64{&pc.Total, &pc.Today, &pc.Yesterday, &pc.ThisMonth}

	for i, filter := range filters {
		opCtx, cancel := s.opCtx(ctx)
		n, err := s.coll(coll).CountDocuments(opCtx, filter)
		cancel()
		if err != nil {
			return pc, err
		}
		*targets[i] = n
	}
	return pc, nil
}

// sumPeriods 对 usage_stats.files_count 分时间段求和
func (s *MongoStorage) sumPeriods(ctx context.Context, total, today, yesterday, month bson.M) (models.PeriodCounts, error) {
	var pc models.PeriodCounts
	filters := []bson.M{total, today, yesterday, month}
	targets := []*int64{&pc.Total, &pc.Today, &pc.Yesterday, &pc.ThisMonth}

	for i, filter := range filters {
		n, err := s.sumFiles(ctx, filter)
		if err != nil {
			return pc, err
		}
		*targets[i] = n
	}
	return pc, nil
}

func (s *MongoStorage) sumFiles(ctx context.Context, filter bson.M) (int64, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	pipeline := bson.A{
		bson.M{"$match": filter},
		bson.M{"$group": bson.M{"_id": nil, "total": bson.M{"$sum": "$files_count"}}},
	}
	cursor, err := s.coll(collUsageStats).Aggregate(opCtx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(opCtx)

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(opCtx, &rows); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}
