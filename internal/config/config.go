// config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// TelegramConfig Telegram 机器人配置
type TelegramConfig struct {
	Token        string        `yaml:"token"`          // Bot Token
	AdminIDs     []int64       `yaml:"admin_ids"`      // 管理员用户ID
	LogChannelID int64         `yaml:"log_channel_id"` // 日志频道ID（0 表示不发送）
	PollTimeout  int           `yaml:"poll_timeout"`   // getUpdates 长轮询秒数
	HTTPTimeout  time.Duration `yaml:"http_timeout"`   // Bot API 请求超时
}

// TinifyConfig 上游压缩 API 配置
type TinifyConfig struct {
	APIKey      string        `yaml:"api_key"`      // 默认 API Key（必填）
	BaseURL     string        `yaml:"base_url"`     // API 基础地址
	Timeout     time.Duration `yaml:"timeout"`      // 单次压缩往返超时
	WebPQuality int           `yaml:"webp_quality"` // 转换 webp 时的质量参数
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI            string        `yaml:"uri"`             // 连接 URI
	Database       string        `yaml:"database"`        // 数据库名
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // 连接超时
	OpTimeout      time.Duration `yaml:"op_timeout"`      // 单次操作超时
}

// RedisConfig Redis 配置（Addr 为空时使用内存限流）
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// FilesConfig 文件处理配置
type FilesConfig struct {
	TempDir        string        `yaml:"temp_dir"`         // 临时目录
	MaxFileSize    int64         `yaml:"max_file_size"`    // 最大文件字节数
	TempMaxAge     time.Duration `yaml:"temp_max_age"`     // 临时文件最长保留时间
	CleanupEvery   time.Duration `yaml:"cleanup_interval"` // 清理周期
	QueueWorkers   int           `yaml:"queue_workers"`    // 并发压缩 worker 数
	MaxQueueSize   int           `yaml:"max_queue_size"`   // 队列容量
	RateLimitDelay time.Duration `yaml:"rate_limit"`       // 每个用户的冷却时间
}

// BroadcastConfig 广播配置
type BroadcastConfig struct {
	BatchSize  int           `yaml:"batch_size"`
	BatchPause time.Duration `yaml:"batch_pause"`
}

// TelemetryConfig 指标与链路追踪配置
type TelemetryConfig struct {
	MetricsAddr   string `yaml:"metrics_addr"`   // Prometheus 监听地址，空表示关闭
	TraceExporter string `yaml:"trace_exporter"` // none / stdout / otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
	ServiceName   string `yaml:"service_name"`
}

// Config 完整配置结构
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Tinify    TinifyConfig    `yaml:"tinify"`
	Mongo     MongoConfig     `yaml:"mongo"`
	Redis     RedisConfig     `yaml:"redis"`
	Files     FilesConfig     `yaml:"files"`
	Broadcast BroadcastConfig `yaml:"broadcast"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	LogLevel  string          `yaml:"log_level"`
	Version   string          `yaml:"version"`
}

// LoadConfig 从 YAML 文件加载配置；文件不存在时仅使用默认值与环境变量
func LoadConfig(filePath string) (*Config, error) {
	startTime := time.Now()

	// 步骤1：加载 .env（可选）
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "LoadConfig",
			"took":   time.Since(startTime),
		}).Warnf(".env 加载失败: %v", err)
	}

	// 步骤2：读取并解析 YAML
	var cfg Config
	data, err := os.ReadFile(filePath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			logrus.WithFields(logrus.Fields{
				"time":   time.Now().Format("2006-01-02 15:04:05"),
				"method": "LoadConfig",
				"took":   time.Since(startTime),
			}).Errorf("解析YAML失败: %v", err)
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	case errors.Is(err, os.ErrNotExist):
		logrus.Warnf("配置文件 %s 不存在，使用默认值与环境变量", filePath)
	default:
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 步骤3：默认值 + 环境变量
	cfg.setDefaults()
	cfg.mergeEnvVars()

	// 步骤4：校验
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 步骤5：日志级别
	logrus.SetLevel(logrus.DebugLevel)
	if cfg.LogLevel != "" {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logrus.SetLevel(level)
		}
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "LoadConfig",
		"took":   time.Since(startTime),
	}).Info("配置加载成功")
	return &cfg, nil
}

// setDefaults 设置配置默认值
func (c *Config) setDefaults() {
	if c.Telegram.PollTimeout == 0 {
		c.Telegram.PollTimeout = 60
	}
	if c.Telegram.HTTPTimeout == 0 {
		c.Telegram.HTTPTimeout = 90 * time.Second
	}

	if c.Tinify.BaseURL == "" {
		c.Tinify.BaseURL = "https://api.tinify.com"
	}
	if c.Tinify.Timeout == 0 {
		c.Tinify.Timeout = 30 * time.Second
	}
	if c.Tinify.WebPQuality == 0 {
		c.Tinify.WebPQuality = 80
	}

	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "image_compressor"
	}
	if c.Mongo.ConnectTimeout == 0 {
		c.Mongo.ConnectTimeout = 5 * time.Second
	}
	if c.Mongo.OpTimeout == 0 {
		c.Mongo.OpTimeout = 5 * time.Second
	}

	if c.Files.TempDir == "" {
		c.Files.TempDir = "temp"
	}
	if c.Files.MaxFileSize == 0 {
		c.Files.MaxFileSize = 5 * 1024 * 1024
	}
	if c.Files.TempMaxAge == 0 {
		c.Files.TempMaxAge = 24 * time.Hour
	}
	if c.Files.CleanupEvery == 0 {
		c.Files.CleanupEvery = time.Hour
	}
	if c.Files.QueueWorkers == 0 {
		c.Files.QueueWorkers = 4
	}
	if c.Files.MaxQueueSize == 0 {
		c.Files.MaxQueueSize = 100
	}
	if c.Files.RateLimitDelay == 0 {
		c.Files.RateLimitDelay = 5 * time.Second
	}

	if c.Broadcast.BatchSize == 0 {
		c.Broadcast.BatchSize = 25
	}
	if c.Broadcast.BatchPause == 0 {
		c.Broadcast.BatchPause = 2 * time.Second
	}

	if c.Telemetry.TraceExporter == "" {
		c.Telemetry.TraceExporter = "none"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "image-compressor"
	}

	if c.Version == "" {
		c.Version = "1.0.0"
	}
}

// mergeEnvVars 合并环境变量（优先级高于配置文件）
func (c *Config) mergeEnvVars() {
	if token := os.Getenv("BOT_TOKEN"); token != "" {
		c.Telegram.Token = token
	}
	if ids := os.Getenv("ADMIN_IDS"); ids != "" {
		c.Telegram.AdminIDs = parseIDList(ids)
	} else if id := os.Getenv("ADMIN_ID"); id != "" {
		c.Telegram.AdminIDs = parseIDList(id)
	}
	if ch := os.Getenv("LOG_CHANNEL_ID"); ch != "" {
		if v, err := strconv.ParseInt(ch, 10, 64); err == nil {
			c.Telegram.LogChannelID = v
		}
	}

	if key := os.Getenv("TINIFY_API_KEY"); key != "" {
		c.Tinify.APIKey = key
	}

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		c.Mongo.URI = uri
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Redis.Password = pw
	}

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.LogLevel = lvl
	}
	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		c.Telemetry.MetricsAddr = addr
	}
}

// Validate 校验必填项，缺失时启动失败
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.Telegram.Token) == "" {
		missing = append(missing, "BOT_TOKEN")
	}
	if strings.TrimSpace(c.Tinify.APIKey) == "" {
		missing = append(missing, "TINIFY_API_KEY")
	}
	if strings.TrimSpace(c.Mongo.URI) == "" {
		missing = append(missing, "MONGO_URI")
	}
	if len(missing) > 0 {
		return fmt.Errorf("缺少必填配置: %s", strings.Join(missing, ", "))
	}
	if c.Tinify.WebPQuality < 1 || c.Tinify.WebPQuality > 100 {
		return fmt.Errorf("webp_quality 必须在 1-100 之间: %d", c.Tinify.WebPQuality)
	}
	return nil
}

// IsAdmin 判断用户是否为管理员
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.Telegram.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func parseIDList(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if v, err := strconv.ParseInt(part, 10, 64); err == nil {
			ids = append(ids, v)
		}
	}
	return ids
}
