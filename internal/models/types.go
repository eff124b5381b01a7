// models/types.go：Mongo 文档与压缩结果的公共数据结构。

package models

import (
	"time"
)

// UserCredential 用户自定义 API Key（每个用户至多一条）
type UserCredential struct {
	UserID    int64     `json:"user_id" bson:"user_id"`       // Telegram 用户ID
	APIKey    string    `json:"api_key" bson:"api_key"`       // TinyPNG API Key
	CreatedAt time.Time `json:"created_at" bson:"created_at"` // 首次设置时间
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"` // 最近更新时间
}

// CompressionJob 单个压缩任务（不落库，处理完即丢弃）
type CompressionJob struct {
	InputPath    string // 输入文件路径
	OutputPath   string // 输出文件路径
	UserID       int64  // 用户ID
	TargetFormat Format // 目标格式，空表示 original
}

// UsageRecord 按天统计的用量（user_id + date 唯一）
type UsageRecord struct {
	UserID     int64  `json:"user_id" bson:"user_id"`
	Date       string `json:"date" bson:"date"` // YYYY-MM-DD (UTC)
	FilesCount int64  `json:"files_count" bson:"files_count"`
	BytesSaved int64  `json:"bytes_saved" bson:"bytes_saved"` // 可能为负
}

// UsageStats 用户统计读取结果
type UsageStats struct {
	TodayFiles int64     `json:"today_files"`
	TodayBytes int64     `json:"today_bytes"`
	TotalFiles int64     `json:"total_files"`
	TotalBytes int64     `json:"total_bytes"`
	LastUsed   time.Time `json:"last_used"`
}

// User 用户文档，同时承载终身累计计数与封禁信息
type User struct {
	UserID            int64     `json:"user_id" bson:"user_id"`
	Username          string    `json:"username" bson:"username"`
	FirstName         string    `json:"first_name" bson:"first_name"`
	JoinedDate        time.Time `json:"joined_date" bson:"joined_date"`
	LastActive        time.Time `json:"last_active" bson:"last_active"`
	TotalCompressions int64     `json:"total_compressions" bson:"total_compressions"`
	TotalSizeSaved    int64     `json:"total_size_saved" bson:"total_size_saved"`
	Banned            bool      `json:"banned" bson:"banned"`
	BanReason         string    `json:"ban_reason,omitempty" bson:"ban_reason,omitempty"`
	BannedAt          time.Time `json:"banned_at,omitempty" bson:"banned_at,omitempty"`
	BannedBy          int64     `json:"banned_by,omitempty" bson:"banned_by,omitempty"`
}

// UserSettings 用户偏好
type UserSettings struct {
	UserID               int64     `json:"user_id" bson:"user_id"`
	DefaultFormat        Format    `json:"default_format" bson:"default_format"`
	NotificationsEnabled bool      `json:"notifications_enabled" bson:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt            time.Time `json:"updated_at" bson:"updated_at"`
}

// DefaultSettings 返回新用户的默认偏好
func DefaultSettings(userID int64) UserSettings {
	return UserSettings{
		UserID:               userID,
		DefaultFormat:        FormatOriginal,
		NotificationsEnabled: true,
	}
}

// APICallLog 上游 API 调用日志（logs 集合）
type APICallLog struct {
	UserID         int64     `bson:"user_id"`
	APIKey         string    `bson:"api_key"` // 已脱敏
	Success        bool      `bson:"success"`
	ErrorKind      ErrorKind `bson:"error_kind,omitempty"`
	OriginalSize   int64     `bson:"original_size"`
	CompressedSize int64     `bson:"compressed_size"`
	Format         Format    `bson:"format"`
	Timestamp      time.Time `bson:"timestamp"`
}

// UserActionLog 用户行为日志（user_logs 集合）
type UserActionLog struct {
	UserID    int64          `bson:"user_id"`
	Action    string         `bson:"action"`
	Details   map[string]any `bson:"details,omitempty"`
	Timestamp time.Time      `bson:"timestamp"`
}

// PeriodCounts 管理员统计中的时间段计数
type PeriodCounts struct {
	Total     int64
	Today     int64
	Yesterday int64
	ThisMonth int64
}

// AdminStats 管理员统计
type AdminStats struct {
	Users        PeriodCounts
	Compressions PeriodCounts
	GeneratedAt  time.Time
}
