package telegram

import (
	"context"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

const maxSendAttempts = 3

// sendWithRetry 发送消息，遇到 429 时按 RetryAfter 等待重试
func sendWithRetry(ctx context.Context, api BotInterface, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	for attempt := 1; ; attempt++ {
		msg, err := api.Send(c)
		if err == nil {
			return msg, nil
		}

		var tgErr *tgbotapi.Error
		if !errors.As(err, &tgErr) || tgErr.Code != http.StatusTooManyRequests || attempt >= maxSendAttempts {
			return msg, err
		}

		retryAfter := time.Duration(attempt*attempt) * time.Second
		if tgErr.RetryAfter > 0 {
			retryAfter = time.Duration(tgErr.RetryAfter) * time.Second
		}
		logrus.Warnf("Telegram 限流 (attempt %d/%d)，%v 后重试", attempt, maxSendAttempts, retryAfter)

		select {
		case <-ctx.Done():
			return msg, ctx.Err()
		case <-time.After(retryAfter):
		}
	}
}

// reply 发送 HTML 文本，失败只记录日志
func (b *Bot) reply(ctx context.Context, chatID int64, text string) tgbotapi.Message {
	return b.replyWithMarkup(ctx, chatID, text, nil)
}

func (b *Bot) replyWithMarkup(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) tgbotapi.Message {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	sent, err := sendWithRetry(ctx, b.api, msg)
	if err != nil {
		logrus.Warnf("发送消息到 %d 失败: %v", chatID, err)
	}
	return sent
}

// edit 编辑已有消息，messageID 为 0 时改为发送新消息
func (b *Bot) edit(ctx context.Context, chatID int64, messageID int, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	if messageID == 0 {
		b.replyWithMarkup(ctx, chatID, text, markup)
		return
	}
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, text)
	cfg.ParseMode = tgbotapi.ModeHTML
	cfg.ReplyMarkup = markup
	if _, err := sendWithRetry(ctx, b.api, cfg); err != nil {
		logrus.Debugf("编辑消息 %d 失败: %v", messageID, err)
	}
}

func (b *Bot) deleteMessage(chatID int64, messageID int) {
	if messageID == 0 {
		return
	}
	if _, err := b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		logrus.Debugf("删除消息 %d 失败: %v", messageID, err)
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		logrus.Debugf("应答回调失败: %v", err)
	}
}
