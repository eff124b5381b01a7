package storage

import (
	"context"
	"errors"
	"time"

	"image-compressor/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// IncrementDaily 原子递增 (user_id, date) 日统计，不存在时创建
func (s *MongoStorage) IncrementDaily(ctx context.Context, userID int64, date string, files, bytesSaved int64) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.coll(collUsageStats).UpdateOne(opCtx,
		bson.M{"user_id": userID, "date": date},
		bson.M{"$inc": bson.M{"files_count": files, "bytes_saved": bytesSaved}},
		options.Update().SetUpsert(true),
	)
	return err
}

// IncrementLifetime 原子递增用户终身累计（单文档多字段 $inc）
func (s *MongoStorage) IncrementLifetime(ctx context.Context, userID int64, files, bytesSaved int64, at time.Time) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	_, err := s.coll(collUsers).UpdateOne(opCtx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{"total_compressions": files, "total_size_saved": bytesSaved},
			"$set": bson.M{"last_active": at},
			"$setOnInsert": bson.M{
				"joined_date": at,
				"banned":      false,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// GetDaily 读取某天统计，缺失时返回零值
func (s *MongoStorage) GetDaily(ctx context.Context, userID int64, date string) (models.UsageRecord, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	rec := models.UsageRecord{UserID: userID, Date: date}
	err := s.coll(collUsageStats).FindOne(opCtx, bson.M{"user_id": userID, "date": date}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.UsageRecord{UserID: userID, Date: date}, nil
	}
	return rec, err
}

// GetLifetime 读取终身累计，缺失时返回零值
func (s *MongoStorage) GetLifetime(ctx context.Context, userID int64) (files, bytesSaved int64, lastActive time.Time, err error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	var user models.User
	err = s.coll(collUsers).FindOne(opCtx, bson.M{"user_id": userID},
		options.FindOne().SetProjection(bson.M{"total_compressions": 1, "total_size_saved": 1, "last_active": 1}),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, 0, time.Time{}, nil
	}
	if err != nil {
		return 0, 0, time.Time{}, err
	}
	return user.TotalCompressions, user.TotalSizeSaved, user.LastActive, nil
}
