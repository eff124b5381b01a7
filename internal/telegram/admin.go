package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"image-compressor/internal/storage"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// handleAdminCommand 调用方已确认是管理员
func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "admin":
		stats, err := b.deps.Store.AdminStats(ctx, time.Now())
		if err != nil {
			logrus.Errorf("管理员统计失败: %v", err)
			b.reply(ctx, chatID, textGeneralError)
			return
		}
		b.reply(ctx, chatID, adminStatsText(stats, fmt.Sprintf("⏳ Queue: %d", b.deps.Queue.Len())))
	case "ban":
		b.cmdBan(ctx, msg)
	case "unban":
		b.cmdUnban(ctx, msg)
	case "banned_users":
		users, err := b.deps.Store.ListBanned(ctx)
		if err != nil {
			logrus.Errorf("查询封禁列表失败: %v", err)
			b.reply(ctx, chatID, textGeneralError)
			return
		}
		b.reply(ctx, chatID, bannedListText(users))
	case "broadcast":
		b.cmdBroadcast(ctx, msg)
	}
}

// cmdBan /ban <user_id> [reason]
func (b *Bot) cmdBan(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := commandArgs(msg)
	if len(args) == 0 {
		b.reply(ctx, chatID, "ℹ️ Usage: /ban &lt;user_id&gt; [reason]")
		return
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(ctx, chatID, "⚠️ Invalid user ID.")
		return
	}
	if b.cfg.IsAdmin(target) {
		b.reply(ctx, chatID, "⚠️ Administrators cannot be banned.")
		return
	}
	reason := "No reason provided"
	if len(args) > 1 {
		reason = strings.Join(args[1:], " ")
	}

	err = b.deps.Store.BanUser(ctx, target, reason, msg.From.ID)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		b.reply(ctx, chatID, "⚠️ User not found.")
	case errors.Is(err, storage.ErrAlreadyBanned):
		b.reply(ctx, chatID, "ℹ️ User is already banned.")
	case err != nil:
		logrus.Errorf("封禁用户失败 %d: %v", target, err)
		b.reply(ctx, chatID, textGeneralError)
	default:
		b.deps.Queue.Cancel(target)
		b.logAction(ctx, msg.From.ID, "ban", map[string]any{"target": target, "reason": reason})
		b.reply(ctx, chatID, fmt.Sprintf("🚫 User <code>%d</code> has been banned.", target))
	}
}

// cmdUnban /unban <user_id>
func (b *Bot) cmdUnban(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	args := commandArgs(msg)
	if len(args) == 0 {
		b.reply(ctx, chatID, "ℹ️ Usage: /unban &lt;user_id&gt;")
		return
	}
	target, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		b.reply(ctx, chatID, "⚠️ Invalid user ID.")
		return
	}

	err = b.deps.Store.UnbanUser(ctx, target)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		b.reply(ctx, chatID, "⚠️ User not found.")
	case errors.Is(err, storage.ErrNotBanned):
		b.reply(ctx, chatID, "ℹ️ User is not banned.")
	case err != nil:
		logrus.Errorf("解除封禁失败 %d: %v", target, err)
		b.reply(ctx, chatID, textGeneralError)
	default:
		b.bannedSeen.Delete(target)
		b.logAction(ctx, msg.From.ID, "unban", map[string]any{"target": target})
		b.reply(ctx, chatID, fmt.Sprintf("✅ User <code>%d</code> has been unbanned.", target))
	}
}

// cmdBroadcast 回复某条消息发送 /broadcast，后台分批复制
func (b *Bot) cmdBroadcast(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	if msg.ReplyToMessage == nil {
		b.reply(ctx, chatID, textBroadcastUsage)
		return
	}
	userIDs, err := b.deps.Store.ListActiveUserIDs(ctx)
	if err != nil {
		logrus.Errorf("查询广播用户失败: %v", err)
		b.reply(ctx, chatID, textGeneralError)
		return
	}
	if len(userIDs) == 0 {
		b.reply(ctx, chatID, "❌ No users found to broadcast to.")
		return
	}

	status := b.reply(ctx, chatID, broadcastProgressText(BroadcastResult{Total: len(userIDs)}, false))
	sourceID := msg.ReplyToMessage.MessageID

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		res := b.broadcaster.Broadcast(ctx, userIDs, chatID, sourceID, func(r BroadcastResult) {
			b.edit(ctx, chatID, status.MessageID, broadcastProgressText(r, false), nil)
		})
		b.edit(context.WithoutCancel(ctx), chatID, status.MessageID, broadcastProgressText(res, true), nil)
		b.logAction(context.WithoutCancel(ctx), msg.From.ID, "broadcast", map[string]any{
			"sent":   res.Sent,
			"failed": res.Failed,
		})
	}()
}
