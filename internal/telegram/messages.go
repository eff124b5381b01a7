package telegram

import (
	"fmt"
	"html"
	"math"
	"strings"
	"time"

	"image-compressor/internal/imageinfo"
	"image-compressor/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	textWelcome = `👋 <b>Welcome to Image Compressor Pro!</b>

I can help you:
🔹 Compress images while maintaining quality
🔹 Convert between formats (JPEG, PNG, WebP)
🔹 Track your compression statistics

Send me an image to start!`

	textHelp = `📖 <b>How to use Image Compressor Pro:</b>

1️⃣ <b>Compress Image:</b>
   • Send any image as photo or file
   • Supported formats: JPEG, PNG, WebP

2️⃣ <b>Convert Format:</b>
   • Use /convert
   • Choose target format
   • Send your image

3️⃣ <b>Commands:</b>
   /start - Start the bot
   /settings - Configure settings
   /stats - View your statistics
   /convert - Convert image format
   /setkey - Use your own TinyPNG API key
   /removekey - Go back to the shared key
   /cancel - Cancel pending work
   /help - Show this help

4️⃣ <b>Tips:</b>
   • Max file size: %s
   • Best quality: PNG
   • Smallest size: WebP
   • Web-friendly: JPEG`

	textSendImage       = "📤 Send me an image (JPEG, PNG or WebP) to compress it, or use /help."
	textBanned          = "🚫 You have been banned from using this bot."
	textInvalidFormat   = "⚠️ Unsupported file format. Supported formats: JPEG, PNG, WebP"
	textInvalidImage    = "⚠️ Invalid image file."
	textGeneralError    = "❌ An error occurred while processing your request."
	textQueueFull       = "⏳ The bot is busy right now. Please try again in a minute."
	textDownloading     = "⏳ Downloading file..."
	textProcessing      = "🔄 Processing image..."
	textCancelledJob    = "🛑 Cancelled."
	textFormatSelection = "🎨 <b>Choose the output format</b>\n\nAfter choosing, send me the image you want to convert."
	textAskKey          = "🔑 Send me your TinyPNG API key (32 characters).\nGet one at https://tinypng.com/developers\n\nUse /cancel to abort."
	textKeyInvalid      = "⚠️ That does not look like a TinyPNG API key. It must be 32 letters, digits, '-' or '_'."
	textKeySaved        = "✅ Your API key has been saved. Compressions now use your own quota."
	textKeyRemoved      = "🗑 Your API key has been removed. The shared key will be used."
	textKeyNotSet       = "ℹ️ You have no API key set. The shared key is used."
	textDialogExpired   = "⌛ This request has expired. Start again when you're ready."
	textNotAdmin        = "⛔ This command is for administrators only."
	textBroadcastUsage  = "ℹ️ Reply to the message you want to broadcast with /broadcast."
)

func helpText(maxSize int64) string {
	return fmt.Sprintf(textHelp, imageinfo.HumanSize(maxSize))
}

func fileTooLargeText(maxSize int64) string {
	return fmt.Sprintf("⚠️ File too large! Maximum size is %s", imageinfo.HumanSize(maxSize))
}

func rateLimitText(wait time.Duration) string {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return fmt.Sprintf("⚠️ Please wait %d second(s) before trying again!", secs)
}

func queuedText(position int) string {
	if position <= 1 {
		return "⏳ Your image is next in line..."
	}
	return fmt.Sprintf("⏳ Your image is queued (position %d)...", position)
}

// errorText 按错误类型给出用户提示
func errorText(kind models.ErrorKind) string {
	switch kind {
	case models.ErrorKindCredentialInvalid, models.ErrorKindServiceUnavailable:
		return "⚠️ The compression service is unavailable right now. Please try again later."
	case models.ErrorKindClientInputInvalid:
		return "⚠️ This image could not be processed. Please check the file and try again."
	default:
		return textGeneralError
	}
}

func compressionCaption(r models.Result) string {
	var sb strings.Builder
	sb.WriteString("✅ Image Compressed Successfully!\n\n📊 Results:\n")
	sb.WriteString(fmt.Sprintf("├ Original: %s\n", imageinfo.HumanSize(r.OriginalSize)))
	sb.WriteString(fmt.Sprintf("├ Compressed: %s\n", imageinfo.HumanSize(r.CompressedSize)))
	sb.WriteString(fmt.Sprintf("└ Saved: %s (%.1f%%)", imageinfo.HumanSize(r.SavedBytes), r.SavedPercentage))
	if r.FormatUsed.Converts() {
		sb.WriteString(fmt.Sprintf("\n\n🎨 Format: %s", strings.ToUpper(string(r.FormatUsed))))
	}
	return sb.String()
}

func statsText(s models.UsageStats) string {
	last := "never"
	if !s.LastUsed.IsZero() {
		last = s.LastUsed.UTC().Format("2006-01-02 15:04:05") + " UTC"
	}
	return fmt.Sprintf(`📊 <b>Your Usage Statistics</b>

Today's Usage:
├ Files: %d
└ Saved: %s

Total Usage:
├ Files: %d
└ Saved: %s

Last Used: %s`, s.TodayFiles, imageinfo.HumanSize(s.TodayBytes), s.TotalFiles, imageinfo.HumanSize(s.TotalBytes), last)
}

func settingsText(s models.UserSettings, hasKey bool) string {
	key := "shared"
	if hasKey {
		key = "your own"
	}
	return fmt.Sprintf(`⚙️ <b>Settings</b>

🎨 Default format: <b>%s</b>
🔑 API key: <b>%s</b>

Pick a default output format or manage your API key below.`, strings.ToUpper(string(s.DefaultFormat)), key)
}

func adminStatsText(s *models.AdminStats, queueInfo string) string {
	return fmt.Sprintf(`📊 <b>Admin Statistics</b>

👥 Users
├ Total: %d
├ Today: %d
├ Yesterday: %d
└ This month: %d

🖼 Compressions
├ Total: %d
├ Today: %d
├ Yesterday: %d
└ This month: %d

%s
🕒 %s UTC`,
		s.Users.Total, s.Users.Today, s.Users.Yesterday, s.Users.ThisMonth,
		s.Compressions.Total, s.Compressions.Today, s.Compressions.Yesterday, s.Compressions.ThisMonth,
		queueInfo, s.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
}

func bannedListText(users []models.User) string {
	if len(users) == 0 {
		return "✅ No banned users."
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🚫 <b>Banned users (%d)</b>\n\n", len(users)))
	for _, u := range users {
		name := u.Username
		if name == "" {
			name = u.FirstName
		}
		sb.WriteString(fmt.Sprintf("• <code>%d</code> %s", u.UserID, html.EscapeString(name)))
		if u.BanReason != "" {
			sb.WriteString(" - " + html.EscapeString(u.BanReason))
		}
		if !u.BannedAt.IsZero() {
			sb.WriteString(fmt.Sprintf(" (%s)", u.BannedAt.UTC().Format("2006-01-02")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func broadcastProgressText(r BroadcastResult, done bool) string {
	head := "📢 Broadcasting..."
	if done {
		head = "📢 Broadcast finished."
	}
	return fmt.Sprintf("%s\n\n✅ Sent: %d\n❌ Failed: %d\n📬 Total: %d", head, r.Sent, r.Failed, r.Total)
}

func mainMenuKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Statistics", "stats"),
			tgbotapi.NewInlineKeyboardButtonData("⚙️ Settings", "settings"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🎨 Convert", "convert"),
			tgbotapi.NewInlineKeyboardButtonData("❓ Help", "help"),
		),
	)
	return &kb
}

func backKeyboard() *tgbotapi.InlineKeyboardMarkup {
	kb := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Main Menu", "start")),
	)
	return &kb
}

// formatKeyboard prefix 为 format_（一次性转换）或 default_（默认格式）
func formatKeyboard(prefix string, includeOriginal bool) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if includeOriginal {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData("ORIGINAL", prefix+string(models.FormatOriginal)))
	}
	for _, f := range models.ConversionFormats {
		row = append(row, tgbotapi.NewInlineKeyboardButtonData(strings.ToUpper(string(f)), prefix+string(f)))
	}
	kb := tgbotapi.NewInlineKeyboardMarkup(
		row,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Main Menu", "start")),
	)
	return &kb
}

func settingsKeyboard(hasKey bool) *tgbotapi.InlineKeyboardMarkup {
	keyButton := tgbotapi.NewInlineKeyboardButtonData("➕ Add API Key", "api_key_set")
	if hasKey {
		keyButton = tgbotapi.NewInlineKeyboardButtonData("🗑 Remove API Key", "api_key_remove")
	}
	formats := formatKeyboard("default_", true)
	rows := append([][]tgbotapi.InlineKeyboardButton{}, formats.InlineKeyboard[0])
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(keyButton),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🏠 Main Menu", "start")),
	)
	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}
