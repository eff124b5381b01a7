// 文件: internal/compressor/accountant.go
package compressor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"image-compressor/internal/models"

	"github.com/sirupsen/logrus"
)

const dayLayout = "2006-01-02"

var ErrNegativeSize = errors.New("negative file size")

// UsageStore 用量计数的持久化
type UsageStore interface {
	IncrementDaily(ctx context.Context, userID int64, date string, files, bytesSaved int64) error
	IncrementLifetime(ctx context.Context, userID int64, files, bytesSaved int64, at time.Time) error
	GetDaily(ctx context.Context, userID int64, date string) (models.UsageRecord, error)
	GetLifetime(ctx context.Context, userID int64) (files, bytesSaved int64, lastActive time.Time, err error)
}

// Accountant 记录成功压缩的用量（日统计 + 终身累计）
type Accountant struct {
	store UsageStore
	now   func() time.Time
}

// NewAccountant now 为 nil 时使用 time.Now
func NewAccountant(store UsageStore, now func() time.Time) *Accountant {
	if now == nil {
		now = time.Now
	}
	return &Accountant{store: store, now: now}
}

// DayKey UTC 日期键
func DayKey(t time.Time) string {
	return t.UTC().Format(dayLayout)
}

// Record 记录一次成功压缩；两个计数相互独立，失败不回滚
func (a *Accountant) Record(ctx context.Context, userID, originalSize, compressedSize int64) error {
	if originalSize < 0 || compressedSize < 0 {
		return ErrNegativeSize
	}
	startTime := time.Now()
	now := a.now().UTC()
	saved := originalSize - compressedSize

	var errs []error
	if err := a.store.IncrementDaily(ctx, userID, DayKey(now), 1, saved); err != nil {
		errs = append(errs, fmt.Errorf("日统计更新失败: %w", err))
	}
	if err := a.store.IncrementLifetime(ctx, userID, 1, saved, now); err != nil {
		errs = append(errs, fmt.Errorf("累计统计更新失败: %w", err))
	}

	err := errors.Join(errs...)
	fields := logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "Record",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"user_id":     userID,
			"date":        DayKey(now),
			"bytes_saved": saved,
		},
	}
	if err != nil {
		logrus.WithFields(fields).Errorf("用量记录失败: %v", err)
		return err
	}
	logrus.WithFields(fields).Debug("用量已记录")
	return nil
}

// Stats 读取用户用量，缺失记录返回零值
func (a *Accountant) Stats(ctx context.Context, userID int64) (models.UsageStats, error) {
	var stats models.UsageStats

	daily, err := a.store.GetDaily(ctx, userID, DayKey(a.now()))
	if err != nil {
		return stats, fmt.Errorf("读取日统计失败: %w", err)
	}
	files, saved, last, err := a.store.GetLifetime(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("读取累计统计失败: %w", err)
	}

	stats.TodayFiles = daily.FilesCount
	stats.TodayBytes = daily.BytesSaved
	stats.TotalFiles = files
	stats.TotalBytes = saved
	stats.LastUsed = last
	return stats, nil
}
