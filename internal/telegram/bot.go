// internal/telegram/bot.go
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"image-compressor/internal/config"
	"image-compressor/internal/dialog"
	"image-compressor/internal/models"
	"image-compressor/internal/ratelimit"
	"image-compressor/internal/telemetry"

	"github.com/fatih/color"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// Deps Bot 依赖的组件
type Deps struct {
	Compressor Compressor
	Keys       KeyManager
	Store      Store
	Queue      JobQueue
	Limiter    ratelimit.Limiter
	Dialogs    *dialog.Manager
	Channel    *ChannelLogger
	Metrics    *telemetry.Metrics
}

// Bot 处理 Telegram 更新
type Bot struct {
	api         BotInterface
	cfg         *config.Config
	deps        Deps
	download    *http.Client
	broadcaster *Broadcaster
	bannedSeen  sync.Map // 已提示过封禁的用户
	wg          sync.WaitGroup
}

// NewBotAPI 使用自定义 HTTP 客户端创建 Bot API
func NewBotAPI(cfg *config.TelegramConfig) (*tgbotapi.BotAPI, error) {
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout: 10 * time.Second,
			IdleConnTimeout:     30 * time.Second,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			ForceAttemptHTTP2:   true,
		},
	}
	api, err := tgbotapi.NewBotAPIWithClient(cfg.Token, tgbotapi.APIEndpoint, httpClient)
	if err != nil {
		return nil, fmt.Errorf("创建Telegram Bot失败: %w", err)
	}
	logrus.Infof("%s Telegram Bot 已连接: @%s", color.GreenString("🤖"), api.Self.UserName)
	return api, nil
}

// NewBot 创建 Bot
func NewBot(api BotInterface, cfg *config.Config, deps Deps) *Bot {
	if deps.Dialogs == nil {
		deps.Dialogs = dialog.NewManager(5 * time.Minute)
	}
	b := &Bot{
		api:         api,
		cfg:         cfg,
		deps:        deps,
		download:    &http.Client{Timeout: cfg.Telegram.HTTPTimeout},
		broadcaster: NewBroadcaster(api, cfg.Broadcast.BatchSize, cfg.Broadcast.BatchPause, deps.Metrics),
	}
	deps.Dialogs.OnTimeout(b.onDialogTimeout)
	return b
}

// Run 顺序处理更新直到 ctx 结束或通道关闭
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// Wait 等待后台任务（广播）结束
func (b *Bot) Wait() {
	b.wg.Wait()
}

// HandleUpdate 分发单个更新
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("%s 处理更新崩溃 %d: %v", color.RedString("💥"), update.UpdateID, r)
		}
	}()

	switch {
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "handleMessage",
		"data": logrus.Fields{
			"user_id": userID,
			"chat_id": chatID,
			"command": msg.Command(),
		},
	}).Debug("收到消息")

	// 步骤1：封禁检查
	if b.rejectBanned(ctx, userID, chatID) {
		return
	}
	b.bannedSeen.Delete(userID)

	// 步骤2：保存用户
	isNew, err := b.deps.Store.SaveUser(ctx, userID, msg.From.UserName, msg.From.FirstName)
	if err != nil {
		logrus.Warnf("保存用户 %d 失败: %v", userID, err)
	} else if isNew {
		b.deps.Channel.NewUser(msg.From)
	}

	// 步骤3：命令
	if msg.IsCommand() {
		if !b.allow(ctx, userID, chatID) {
			return
		}
		b.handleCommand(ctx, msg)
		return
	}

	// 步骤4：文件
	if len(msg.Photo) > 0 || msg.Document != nil {
		if !b.allow(ctx, userID, chatID) {
			return
		}
		b.handleFile(ctx, msg)
		return
	}

	// 步骤5：对话输入
	if state, ok := b.deps.Dialogs.Get(userID); ok && state.Stage == dialog.StageAwaitingKey {
		b.handleKeyInput(ctx, msg)
		return
	}

	b.reply(ctx, chatID, textSendImage)
}

// rejectBanned 被封禁用户只提示一次
func (b *Bot) rejectBanned(ctx context.Context, userID, chatID int64) bool {
	if b.cfg.IsAdmin(userID) {
		return false
	}
	banned, err := b.deps.Store.IsBanned(ctx, userID)
	if err != nil {
		logrus.Warnf("查询封禁状态失败 %d: %v", userID, err)
		return false
	}
	if !banned {
		return false
	}
	if _, seen := b.bannedSeen.LoadOrStore(userID, struct{}{}); !seen {
		b.reply(ctx, chatID, textBanned)
	}
	return true
}

// allow 冷却检查，管理员不受限
func (b *Bot) allow(ctx context.Context, userID, chatID int64) bool {
	if b.deps.Limiter == nil || b.cfg.IsAdmin(userID) {
		return true
	}
	ok, wait := b.deps.Limiter.Allow(ctx, userID)
	if ok {
		return true
	}
	b.deps.Metrics.IncRateLimited()
	b.reply(ctx, chatID, rateLimitText(wait))
	return false
}

func (b *Bot) logAction(ctx context.Context, userID int64, action string, details map[string]any) {
	err := b.deps.Store.SaveUserAction(ctx, models.UserActionLog{
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		logrus.Warnf("记录用户行为失败 %d/%s: %v", userID, action, err)
	}
}

func (b *Bot) onDialogTimeout(state dialog.State) {
	if state.MessageID == 0 {
		return
	}
	edit := tgbotapi.NewEditMessageText(state.ChatID, state.MessageID, textDialogExpired)
	if _, err := b.api.Send(edit); err != nil {
		logrus.Debugf("编辑超时提示失败: %v", err)
	}
}

func commandArgs(msg *tgbotapi.Message) []string {
	return strings.Fields(msg.CommandArguments())
}
