package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"image-compressor/internal/compressor"
	"image-compressor/internal/dialog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// handleCommand 分发命令
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		b.deps.Dialogs.Cancel(userID)
		b.replyWithMarkup(ctx, chatID, textWelcome, mainMenuKeyboard())
	case "help":
		b.replyWithMarkup(ctx, chatID, helpText(b.cfg.Files.MaxFileSize), backKeyboard())
	case "settings":
		text, kb := b.settingsView(ctx, userID)
		b.replyWithMarkup(ctx, chatID, text, kb)
	case "stats":
		b.reply(ctx, chatID, b.statsView(ctx, userID))
	case "convert":
		b.replyWithMarkup(ctx, chatID, textFormatSelection, formatKeyboard("format_", false))
	case "setkey":
		b.cmdSetKey(ctx, msg)
	case "removekey":
		b.removeKey(ctx, userID, chatID, 0)
	case "cancel":
		b.cmdCancel(ctx, userID, chatID)
	case "admin", "ban", "unban", "banned_users", "broadcast":
		if !b.cfg.IsAdmin(userID) {
			b.reply(ctx, chatID, textNotAdmin)
			return
		}
		b.handleAdminCommand(ctx, msg)
	default:
		b.reply(ctx, chatID, "❓ Unknown command. Use /help to see what I can do.")
	}
}

func (b *Bot) settingsView(ctx context.Context, userID int64) (string, *tgbotapi.InlineKeyboardMarkup) {
	settings, err := b.deps.Store.GetSettings(ctx, userID)
	if err != nil {
		logrus.Warnf("读取用户设置失败 %d: %v", userID, err)
	}
	hasKey, err := b.deps.Keys.HasCustomKey(ctx, userID)
	if err != nil {
		logrus.Warnf("查询用户Key失败 %d: %v", userID, err)
	}
	return settingsText(settings, hasKey), settingsKeyboard(hasKey)
}

func (b *Bot) statsView(ctx context.Context, userID int64) string {
	stats, err := b.deps.Compressor.Stats(ctx, userID)
	if err != nil {
		logrus.Warnf("读取用户统计失败 %d: %v", userID, err)
		return textGeneralError
	}
	return statsText(stats)
}

// cmdSetKey /setkey <key> 直接保存；无参数时进入等待输入
func (b *Bot) cmdSetKey(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	args := commandArgs(msg)
	if len(args) == 0 {
		b.askForKey(ctx, userID, chatID)
		return
	}
	// 含 Key 的消息不保留在聊天记录中
	b.deleteMessage(chatID, msg.MessageID)
	b.saveKey(ctx, userID, chatID, args[0])
}

func (b *Bot) askForKey(ctx context.Context, userID, chatID int64) {
	sent := b.reply(ctx, chatID, textAskKey)
	b.deps.Dialogs.Start(dialog.State{
		UserID:    userID,
		ChatID:    chatID,
		Stage:     dialog.StageAwaitingKey,
		MessageID: sent.MessageID,
	})
}

// handleKeyInput 处理 /setkey 后发送的 Key
func (b *Bot) handleKeyInput(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID
	key := strings.TrimSpace(msg.Text)

	b.deleteMessage(chatID, msg.MessageID)
	if !compressor.ValidateAPIKey(key) {
		b.reply(ctx, chatID, textKeyInvalid)
		return
	}
	b.deps.Dialogs.Cancel(userID)
	b.saveKey(ctx, userID, chatID, key)
}

func (b *Bot) saveKey(ctx context.Context, userID, chatID int64, key string) {
	err := b.deps.Keys.SetKey(ctx, userID, key)
	switch {
	case errors.Is(err, compressor.ErrInvalidAPIKey):
		b.reply(ctx, chatID, textKeyInvalid)
	case err != nil:
		logrus.Errorf("保存用户Key失败 %d: %v", userID, err)
		b.reply(ctx, chatID, textGeneralError)
	default:
		b.logAction(ctx, userID, "api_key_set", nil)
		b.reply(ctx, chatID, textKeySaved)
	}
}

func (b *Bot) removeKey(ctx context.Context, userID, chatID int64, messageID int) {
	removed, err := b.deps.Keys.RemoveKey(ctx, userID)
	text := textKeyRemoved
	switch {
	case err != nil:
		logrus.Errorf("删除用户Key失败 %d: %v", userID, err)
		text = textGeneralError
	case !removed:
		text = textKeyNotSet
	default:
		b.logAction(ctx, userID, "api_key_remove", nil)
	}
	b.edit(ctx, chatID, messageID, text, backKeyboard())
}

// cmdCancel 取消对话与排队中的文件
func (b *Bot) cmdCancel(ctx context.Context, userID, chatID int64) {
	hadDialog := b.deps.Dialogs.Cancel(userID)
	dropped := b.deps.Queue.Cancel(userID)

	switch {
	case dropped > 0:
		b.reply(ctx, chatID, fmt.Sprintf("🛑 Cancelled %d queued image(s).", dropped))
	case hadDialog:
		b.reply(ctx, chatID, "🛑 Cancelled.")
	default:
		b.reply(ctx, chatID, "ℹ️ Nothing to cancel.")
	}
}
