package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"image-compressor/internal/compressor"
	"image-compressor/internal/config"
	"image-compressor/internal/dialog"
	"image-compressor/internal/ratelimit"
	"image-compressor/internal/storage"
	"image-compressor/internal/task"
	"image-compressor/internal/telegram"
	"image-compressor/internal/telemetry"
	"image-compressor/internal/tinify"

	"github.com/fatih/color"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// App 持有所有组件，负责启动与关闭
type App struct {
	cfg        *config.Config
	store      *storage.MongoStorage
	redis      *redis.Client
	memLimiter *ratelimit.MemoryLimiter
	queue      *task.Queue
	metrics    *telemetry.Metrics
	api        *tgbotapi.BotAPI
	bot        *telegram.Bot
	channel    *telegram.ChannelLogger
	metricsSrv *http.Server

	shutdownTracing func(context.Context) error
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

// New 按配置组装组件；任一必需依赖失败则返回错误
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	startTime := time.Now()
	a := &App{cfg: cfg}

	// 步骤1：链路追踪
	shutdown, err := telemetry.SetupTracing(ctx, &cfg.Telemetry)
	if err != nil {
		return nil, err
	}
	a.shutdownTracing = shutdown

	// 步骤2：临时目录
	if err := os.MkdirAll(cfg.Files.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建临时目录失败: %w", err)
	}

	// 步骤3：MongoDB
	store, err := storage.NewMongoStorage(ctx, &cfg.Mongo)
	if err != nil {
		return nil, err
	}
	a.store = store

	// 步骤4：限流（Redis 优先，未配置时使用内存）
	rdb, err := storage.NewRedisClient(ctx, &cfg.Redis)
	if err != nil {
		a.closeStores(ctx)
		return nil, err
	}
	a.redis = rdb
	var limiter ratelimit.Limiter
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.Files.RateLimitDelay)
	} else {
		a.memLimiter = ratelimit.NewMemoryLimiter(cfg.Files.RateLimitDelay)
		limiter = a.memLimiter
		logrus.Warn(color.YellowString("Redis 未配置，使用进程内限流"))
	}

	// 步骤5：压缩流水线
	a.metrics = telemetry.NewMetrics()
	resolver, err := compressor.NewResolver(store, compressor.NewKeyCache(), cfg.Tinify.APIKey)
	if err != nil {
		a.closeStores(ctx)
		return nil, err
	}
	executor := compressor.NewExecutor(tinify.NewClient(&cfg.Tinify), cfg.Tinify.Timeout)
	executor.OnCompressionCount(a.metrics.SetCompressionCount)
	accountant := compressor.NewAccountant(store, time.Now)
	orchestrator := compressor.NewOrchestrator(resolver, executor, accountant, store, a.metrics, cfg.Files.TempDir)

	// 步骤6：任务队列
	a.queue = task.NewQueue(cfg.Files.QueueWorkers, cfg.Files.MaxQueueSize)
	a.queue.OnDepthChange(a.metrics.SetQueueDepth)

	// 步骤7：Telegram
	api, err := telegram.NewBotAPI(&cfg.Telegram)
	if err != nil {
		a.closeStores(ctx)
		return nil, err
	}
	a.api = api
	a.channel = telegram.NewChannelLogger(api, cfg.Telegram.LogChannelID)
	a.bot = telegram.NewBot(api, cfg, telegram.Deps{
		Compressor: orchestrator,
		Keys:       resolver,
		Store:      store,
		Queue:      a.queue,
		Limiter:    limiter,
		Dialogs:    dialog.NewManager(5 * time.Minute),
		Channel:    a.channel,
		Metrics:    a.metrics,
	})

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "New",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"workers":     cfg.Files.QueueWorkers,
			"redis":       rdb != nil,
			"log_channel": cfg.Telegram.LogChannelID != 0,
		},
	}).Info("组件初始化完成")
	return a, nil
}

// Start 启动 worker、轮询、清理与指标服务，不阻塞
func (a *App) Start() {
	green := color.New(color.FgGreen).SprintFunc()
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	// 步骤1：任务worker
	a.queue.Start(runCtx)

	// 步骤2：Telegram 长轮询
	u := tgbotapi.NewUpdate(0)
	u.Timeout = a.cfg.Telegram.PollTimeout
	updates := a.api.GetUpdatesChan(u)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.bot.Run(runCtx, updates)
	}()

	// 步骤3：周期清理
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.cleanupLoop(runCtx)
	}()

	// 步骤4：Prometheus
	if a.cfg.Telemetry.MetricsAddr != "" {
		a.metricsSrv = &http.Server{
			Addr:              a.cfg.Telemetry.MetricsAddr,
			Handler:           a.metricsMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := a.metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("指标服务退出: %v", err)
			}
		}()
		logrus.Infof("📈 指标服务监听: %s", a.cfg.Telemetry.MetricsAddr)
	}

	a.channel.Startup(a.cfg.Version)
	logrus.Infof("%s 🚀 image-compressor %s 启动成功", green("✅"), a.cfg.Version)
}

func (a *App) metricsMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// Stop 停止接收更新，等待进行中的任务后释放资源
func (a *App) Stop(ctx context.Context) {
	startTime := time.Now()

	// 步骤1：停止轮询，排空队列（进行中的压缩跑完）
	a.api.StopReceivingUpdates()
	a.queue.Stop()

	// 步骤2：停止后台循环与广播
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
	a.bot.Wait()

	// 步骤3：释放资源
	if a.metricsSrv != nil {
		if err := a.metricsSrv.Shutdown(ctx); err != nil {
			logrus.Warnf("关闭指标服务失败: %v", err)
		}
	}
	a.closeStores(ctx)

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "Stop",
		"took":   time.Since(startTime),
	}).Info(color.GreenString("所有组件已关闭"))
}

func (a *App) closeStores(ctx context.Context) {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			logrus.Warnf("关闭 Redis 失败: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			logrus.Warnf("关闭 MongoDB 失败: %v", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			logrus.Warnf("关闭链路追踪失败: %v", err)
		}
	}
}
