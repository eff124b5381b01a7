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

// GetAPIKey 查询用户自定义 Key；不存在时 ok=false 且 err=nil
func (s *MongoStorage) GetAPIKey(ctx context.Context, userID int64) (string, bool, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	var cred models.UserCredential
	err := s.coll(collAPIKeys).FindOne(opCtx, bson.M{"user_id": userID}).Decode(&cred)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if cred.APIKey == "" {
		return "", false, nil
	}
	return cred.APIKey, true, nil
}

// SaveAPIKey 保存或更新用户 Key
func (s *MongoStorage) SaveAPIKey(ctx context.Context, userID int64, apiKey string) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	_, err := s.coll(collAPIKeys).UpdateOne(opCtx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":         bson.M{"api_key": apiKey, "updated_at": now},
			"$setOnInsert": bson.M{"created_at": now},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

// DeleteAPIKey 删除用户 Key，返回是否删除了记录
func (s *MongoStorage) DeleteAPIKey(ctx context.Context, userID int64) (bool, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	res, err := s.coll(collAPIKeys).DeleteOne(opCtx, bson.M{"user_id": userID})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}
