package telegram

import (
	"context"
	"fmt"
	"strings"

	"image-compressor/internal/dialog"
	"image-compressor/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// handleCallback 处理内联按钮回调
func (b *Bot) handleCallback(ctx context.Context, cq *tgbotapi.CallbackQuery) {
	if cq.From == nil || cq.Message == nil || cq.Message.Chat == nil {
		b.answerCallback(cq.ID, "")
		return
	}
	userID := cq.From.ID
	chatID := cq.Message.Chat.ID
	messageID := cq.Message.MessageID
	data := cq.Data

	if b.rejectBanned(ctx, userID, chatID) {
		b.answerCallback(cq.ID, "")
		return
	}

	switch {
	case data == "start":
		b.deps.Dialogs.Cancel(userID)
		b.edit(ctx, chatID, messageID, textWelcome, mainMenuKeyboard())
	case data == "help":
		b.edit(ctx, chatID, messageID, helpText(b.cfg.Files.MaxFileSize), backKeyboard())
	case data == "stats":
		b.edit(ctx, chatID, messageID, b.statsView(ctx, userID), backKeyboard())
	case data == "settings":
		text, kb := b.settingsView(ctx, userID)
		b.edit(ctx, chatID, messageID, text, kb)
	case data == "convert":
		b.edit(ctx, chatID, messageID, textFormatSelection, formatKeyboard("format_", false))
	case data == "api_key_set":
		b.edit(ctx, chatID, messageID, textAskKey, nil)
		b.deps.Dialogs.Start(dialog.State{
			UserID:    userID,
			ChatID:    chatID,
			Stage:     dialog.StageAwaitingKey,
			MessageID: messageID,
		})
	case data == "api_key_remove":
		b.removeKey(ctx, userID, chatID, messageID)
	case strings.HasPrefix(data, "format_"):
		b.selectConvertFormat(ctx, userID, chatID, messageID, strings.TrimPrefix(data, "format_"))
	case strings.HasPrefix(data, "default_"):
		b.selectDefaultFormat(ctx, userID, chatID, messageID, strings.TrimPrefix(data, "default_"))
	default:
		logrus.Debugf("未知回调: %s", data)
	}
	b.answerCallback(cq.ID, "")
}

// selectConvertFormat /convert 选择格式后等待用户发送图片
func (b *Bot) selectConvertFormat(ctx context.Context, userID, chatID int64, messageID int, raw string) {
	format, err := models.ParseFormat(raw)
	if err != nil || !format.Converts() {
		b.edit(ctx, chatID, messageID, textInvalidFormat, backKeyboard())
		return
	}
	b.deps.Dialogs.Start(dialog.State{
		UserID:    userID,
		ChatID:    chatID,
		Stage:     dialog.StageAwaitingFile,
		Format:    format,
		MessageID: messageID,
	})
	b.edit(ctx, chatID, messageID,
		fmt.Sprintf("🎨 Selected format: <b>%s</b>\nNow send me the image you want to convert.", strings.ToUpper(string(format))), nil)
}

func (b *Bot) selectDefaultFormat(ctx context.Context, userID, chatID int64, messageID int, raw string) {
	format, err := models.ParseFormat(raw)
	if err != nil {
		b.edit(ctx, chatID, messageID, textInvalidFormat, backKeyboard())
		return
	}
	if err := b.deps.Store.UpdateDefaultFormat(ctx, userID, format); err != nil {
		logrus.Errorf("更新默认格式失败 %d: %v", userID, err)
		b.edit(ctx, chatID, messageID, textGeneralError, backKeyboard())
		return
	}
	b.logAction(ctx, userID, "default_format", map[string]any{"format": string(format)})
	text, kb := b.settingsView(ctx, userID)
	b.edit(ctx, chatID, messageID, text, kb)
}
