package telegram

import (
	"fmt"
	"html"
	"time"

	"image-compressor/internal/imageinfo"
	"image-compressor/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// ChannelLogger 向日志频道推送事件，channelID 为 0 或接收者为 nil 时不发送
type ChannelLogger struct {
	api       BotInterface
	channelID int64
}

func NewChannelLogger(api BotInterface, channelID int64) *ChannelLogger {
	return &ChannelLogger{api: api, channelID: channelID}
}

func (c *ChannelLogger) enabled() bool {
	return c != nil && c.api != nil && c.channelID != 0
}

func (c *ChannelLogger) send(text string) {
	msg := tgbotapi.NewMessage(c.channelID, text+"\nTime: "+time.Now().Format("2006-01-02 15:04:05"))
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := c.api.Send(msg); err != nil {
		logrus.Warnf("发送频道日志失败: %v", err)
	}
}

// Startup 启动通知
func (c *ChannelLogger) Startup(version string) {
	if !c.enabled() {
		return
	}
	c.send(fmt.Sprintf("🚀 Bot started\nVersion: %s", html.EscapeString(version)))
}

// NewUser 新用户
func (c *ChannelLogger) NewUser(user *tgbotapi.User) {
	if !c.enabled() || user == nil {
		return
	}
	name := "None"
	if user.UserName != "" {
		name = "@" + user.UserName
	}
	c.send(fmt.Sprintf("👤 New User\nID: <code>%d</code>\nUsername: %s", user.ID, html.EscapeString(name)))
}

// ImageProcessed 压缩成功
func (c *ChannelLogger) ImageProcessed(userID int64, username string, r models.Result) {
	if !c.enabled() {
		return
	}
	c.send(fmt.Sprintf("🖼 Image Processed\nUser ID: <code>%d</code> %s\nOriginal Size: %s\nCompressed Size: %s\nSaved: %s (%.1f%%)\nFormat: %s",
		userID, html.EscapeString(username),
		imageinfo.HumanSize(r.OriginalSize), imageinfo.HumanSize(r.CompressedSize),
		imageinfo.HumanSize(r.SavedBytes), r.SavedPercentage, r.FormatUsed))
}

// Error 处理失败
func (c *ChannelLogger) Error(userID int64, stage, detail string) {
	if !c.enabled() {
		return
	}
	c.send(fmt.Sprintf("❌ Error Occurred\nUser ID: <code>%d</code>\nStage: %s\nError: %s",
		userID, html.EscapeString(stage), html.EscapeString(detail)))
}
