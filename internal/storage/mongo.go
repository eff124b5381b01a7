// 文件: internal/storage/mongo.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"image-compressor/internal/config"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// 集合名
const (
	collUsers      = "users"
	collAPIKeys    = "api_keys"
	collUsageStats = "usage_stats"
	collSettings   = "settings"
	collLogs       = "logs"
	collUserLogs   = "user_logs"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrAlreadyBanned = errors.New("user already banned")
	ErrNotBanned     = errors.New("user is not banned")
)

// MongoStorage 封装全部 MongoDB 操作，支持并发调用
type MongoStorage struct {
	client    *mongo.Client
	db        *mongo.Database
	opTimeout time.Duration
}

// NewMongoStorage 连接 MongoDB 并创建索引
func NewMongoStorage(ctx context.Context, cfg *config.MongoConfig) (*MongoStorage, error) {
	startTime := time.Now()

	// 步骤1：连接
	clientOpts := options.Client().ApplyURI(cfg.URI).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(20).
		SetMinPoolSize(2)
	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "NewMongoStorage",
			"took":   time.Since(startTime),
		}).Errorf("MongoDB连接失败: %v", err)
		return nil, fmt.Errorf("MongoDB连接失败: %w", err)
	}

	// 步骤2：测试连接
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "NewMongoStorage",
			"took":   time.Since(startTime),
		}).Errorf("MongoDB ping失败: %v", err)
		return nil, fmt.Errorf("MongoDB ping失败: %w", err)
	}

	s := &MongoStorage{
		client:    client,
		db:        client.Database(cfg.Database),
		opTimeout: cfg.OpTimeout,
	}

	// 步骤3：创建索引
	if err := s.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "NewMongoStorage",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"database": cfg.Database,
		},
	}).Info("MongoDB连接成功")
	return s, nil
}

// NewMongoStorageFromDatabase 使用已有数据库句柄（测试与复用连接时使用）
func NewMongoStorageFromDatabase(db *mongo.Database, opTimeout time.Duration) *MongoStorage {
	if opTimeout <= 0 {
		opTimeout = 5 * time.Second
	}
	return &MongoStorage{client: db.Client(), db: db, opTimeout: opTimeout}
}

// createIndexes 创建所有集合的索引
func (s *MongoStorage) createIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		collUsers: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "banned", Value: 1}}},
			{Keys: bson.D{{Key: "joined_date", Value: 1}}},
		},
		collAPIKeys: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collUsageStats: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "date", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "date", Value: 1}}},
		},
		collSettings: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		collLogs: {
			{Keys: bson.D{{Key: "timestamp", Value: 1}}},
		},
		collUserLogs: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: 1}}},
		},
	}

	for name, models := range indexes {
		opCtx, cancel := s.opCtx(ctx)
		_, err := s.db.Collection(name).Indexes().CreateMany(opCtx, models)
		cancel()
		if err != nil {
			return fmt.Errorf("创建索引失败 [%s]: %w", name, err)
		}
	}
	return nil
}

// opCtx 为单次操作加上超时
func (s *MongoStorage) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opTimeout)
}

func (s *MongoStorage) coll(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// Ping 健康检查
func (s *MongoStorage) Ping(ctx context.Context) error {
	opCtx, cancel := s.opCtx(ctx)
	defer cancel()
	return s.client.Ping(opCtx, readpref.Primary())
}

// Close 关闭连接
func (s *MongoStorage) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
