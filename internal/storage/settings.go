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

// GetSettings 查询用户设置，缺失时返回默认设置
func (s *MongoStorage) GetSettings(ctx context.Context, userID int64) (models.UserSettings, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	var settings models.UserSettings
	err := s.coll(collSettings).FindOne(opCtx, bson.M{"user_id": userID}).Decode(&settings)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.DefaultSettings(userID), nil
	}
	if err != nil {
		return models.DefaultSettings(userID), err
	}
	if settings.DefaultFormat == "" {
		settings.DefaultFormat = models.FormatOriginal
	}
	return settings, nil
}

// UpdateDefaultFormat 更新默认输出格式
func (s *MongoStorage) UpdateDefaultFormat(ctx context.Context, userID int64, format models.Format) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	_, err := s.coll(collSettings).UpdateOne(opCtx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{"default_format": format, "updated_at": now},
			"$setOnInsert": bson.M{
				"notifications_enabled": true,
				"created_at":            now,
			},
		},
		options.Update().SetUpsert(true),
	)
	return err
}
