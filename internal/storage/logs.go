package storage

import (
	"context"
	"time"

	"image-compressor/internal/models"
)

// SaveAPICallLog 记录一次上游 API 调用
func (s *MongoStorage) SaveAPICallLog(ctx context.Context, entry models.APICallLog) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.coll(collLogs).InsertOne(opCtx, entry)
	return err
}

// SaveUserAction 记录用户行为
func (s *MongoStorage) SaveUserAction(ctx context.Context, entry models.UserActionLog) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := s.coll(collUserLogs).InsertOne(opCtx, entry)
	return err
}
