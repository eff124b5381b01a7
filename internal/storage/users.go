package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"image-compressor/internal/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SaveUser 保存或更新用户资料，返回是否为新用户
func (s *MongoStorage) SaveUser(ctx context.Context, userID int64, username, firstName string) (bool, error) {
	startTime := time.Now()
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	now := time.Now().UTC()
	res, err := s.coll(collUsers).UpdateOne(opCtx,
		bson.M{"user_id": userID},
		bson.M{
			"$set": bson.M{
				"username":    username,
				"first_name":  firstName,
				"last_active": now,
			},
			"$setOnInsert": bson.M{
				"joined_date":        now,
				"banned":             false,
				"total_compressions": int64(0),
				"total_size_saved":   int64(0),
			},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "SaveUser",
			"took":   time.Since(startTime),
			"data":   logrus.Fields{"user_id": userID},
		}).Errorf("保存用户失败: %v", err)
		return false, fmt.Errorf("保存用户失败: %w", err)
	}
	return res.UpsertedCount > 0, nil
}

// GetUser 查询用户
func (s *MongoStorage) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	var user models.User
	err := s.coll(collUsers).FindOne(opCtx, bson.M{"user_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// IsBanned 判断用户是否被封禁；用户不存在视为未封禁
func (s *MongoStorage) IsBanned(ctx context.Context, userID int64) (bool, error) {
	user, err := s.GetUser(ctx, userID)
	if errors.Is(err, ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.Banned, nil
}

// BanUser 封禁用户
func (s *MongoStorage) BanUser(ctx context.Context, userID int64, reason string, by int64) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.Banned {
		return ErrAlreadyBanned
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err = s.coll(collUsers).UpdateOne(opCtx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{
			"banned":     true,
			"ban_reason": reason,
			"banned_at":  time.Now().UTC(),
			"banned_by":  by,
		}},
	)
	if err != nil {
		return fmt.Errorf("封禁用户失败: %w", err)
	}
	return nil
}

// UnbanUser 解除封禁
func (s *MongoStorage) UnbanUser(ctx context.Context, userID int64) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.Banned {
		return ErrNotBanned
	}

	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	_, err = s.coll(collUsers).UpdateOne(opCtx,
		bson.M{"user_id": userID},
		bson.M{
			"$set":   bson.M{"banned": false},
			"$unset": bson.M{"ban_reason": "", "banned_at": "", "banned_by": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("解除封禁失败: %w", err)
	}
	return nil
}

// ListBanned 列出被封禁用户，按封禁时间倒序
func (s *MongoStorage) ListBanned(ctx context.Context) ([]models.User, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.coll(collUsers).Find(opCtx, bson.M{"banned": true},
		options.Find().SetSort(bson.D{{Key: "banned_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(opCtx)

	var users []models.User
	if err := cursor.All(opCtx, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ListActiveUserIDs 列出所有未封禁用户ID（广播使用）
func (s *MongoStorage) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()

	cursor, err := s.coll(collUsers).Find(opCtx,
		bson.M{"banned": bson.M{"$ne": true}},
		options.Find().SetProjection(bson.M{"user_id": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(opCtx)

	var ids []int64
	for cursor.Next(opCtx) {
		var doc struct {
			UserID int64 `bson:"user_id"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.UserID)
	}
	return ids, cursor.Err()
}
