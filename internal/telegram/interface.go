// internal/telegram/interface.go
package telegram

import (
	"context"
	"time"

	"image-compressor/internal/models"
	"image-compressor/internal/task"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotInterface defines the methods required for Telegram bot interactions.
type BotInterface interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFileDirectURL(fileID string) (string, error)
}

// Compressor 压缩入口
type Compressor interface {
	Compress(ctx context.Context, userID int64, inputPath string, target models.Format) models.Result
	Stats(ctx context.Context, userID int64) (models.UsageStats, error)
}

// KeyManager 用户自定义 API Key 管理
type KeyManager interface {
	SetKey(ctx context.Context, userID int64, key string) error
	RemoveKey(ctx context.Context, userID int64) (bool, error)
	HasCustomKey(ctx context.Context, userID int64) (bool, error)
}

// Store 用户、设置、封禁与统计
type Store interface {
	SaveUser(ctx context.Context, userID int64, username, firstName string) (bool, error)
	IsBanned(ctx context.Context, userID int64) (bool, error)
	BanUser(ctx context.Context, userID int64, reason string, by int64) error
	UnbanUser(ctx context.Context, userID int64) error
	ListBanned(ctx context.Context) ([]models.User, error)
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
	GetSettings(ctx context.Context, userID int64) (models.UserSettings, error)
	UpdateDefaultFormat(ctx context.Context, userID int64, format models.Format) error
	SaveUserAction(ctx context.Context, entry models.UserActionLog) error
	AdminStats(ctx context.Context, now time.Time) (*models.AdminStats, error)
}

// JobQueue 文件任务队列
type JobQueue interface {
	Enqueue(t task.Task) (int, error)
	Cancel(userID int64) int
	Len() int
}
