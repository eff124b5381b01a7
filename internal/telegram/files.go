package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"image-compressor/internal/dialog"
	"image-compressor/internal/imageinfo"
	"image-compressor/internal/models"
	"image-compressor/internal/task"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errDownloadTooLarge = errors.New("download exceeds size limit")

// fileJob 一张待处理图片
type fileJob struct {
	UserID    int64
	Username  string
	ChatID    int64
	FileID    string
	Ext       string
	Format    models.Format
	StatusMsg int
}

// handleFile 校验文件后放入队列
func (b *Bot) handleFile(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	chatID := msg.Chat.ID

	// 步骤1：取文件信息
	var (
		fileID   string
		fileName string
		size     int64
	)
	switch {
	case msg.Document != nil:
		fileID = msg.Document.FileID
		fileName = msg.Document.FileName
		size = int64(msg.Document.FileSize)
		if !imageinfo.AllowedExtension(fileName) {
			b.reply(ctx, chatID, textInvalidFormat)
			return
		}
	case len(msg.Photo) > 0:
		largest := msg.Photo[len(msg.Photo)-1]
		fileID = largest.FileID
		fileName = largest.FileUniqueID + ".jpg"
		size = int64(largest.FileSize)
	default:
		b.reply(ctx, chatID, textInvalidFormat)
		return
	}

	// 步骤2：大小限制
	if size > b.cfg.Files.MaxFileSize {
		b.reply(ctx, chatID, fileTooLargeText(b.cfg.Files.MaxFileSize))
		return
	}

	// 步骤3：目标格式（/convert 选择优先，否则用默认设置）
	format := models.FormatOriginal
	if state, ok := b.deps.Dialogs.Get(userID); ok && state.Stage == dialog.StageAwaitingFile {
		b.deps.Dialogs.Take(userID)
		format = state.Format
	} else if settings, err := b.deps.Store.GetSettings(ctx, userID); err == nil {
		format = settings.DefaultFormat
	}

	// 步骤4：入队
	status := b.reply(ctx, chatID, queuedText(0))
	job := fileJob{
		UserID:    userID,
		Username:  msg.From.UserName,
		ChatID:    chatID,
		FileID:    fileID,
		Ext:       strings.ToLower(filepath.Ext(fileName)),
		Format:    format,
		StatusMsg: status.MessageID,
	}
	position, err := b.deps.Queue.Enqueue(task.Task{
		UserID: userID,
		Run:    func(ctx context.Context) { b.processFile(ctx, job) },
		Drop:   func() { b.edit(context.Background(), chatID, job.StatusMsg, textCancelledJob, nil) },
	})
	if err != nil {
		logrus.Warnf("任务入队失败 %d: %v", userID, err)
		b.edit(ctx, chatID, status.MessageID, textQueueFull, nil)
		return
	}
	if position > 1 {
		b.edit(ctx, chatID, status.MessageID, queuedText(position), nil)
	}
}

// processFile 下载、校验、压缩并回传结果
func (b *Bot) processFile(ctx context.Context, job fileJob) {
	startTime := time.Now()

	// 步骤1：下载到临时目录
	b.edit(ctx, job.ChatID, job.StatusMsg, textDownloading, nil)
	inputPath := filepath.Join(b.cfg.Files.TempDir, uuid.NewString()+job.Ext)
	if err := b.downloadFile(ctx, job.FileID, inputPath); err != nil {
		_ = os.Remove(inputPath)
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "processFile",
			"took":   time.Since(startTime),
			"data":   logrus.Fields{"user_id": job.UserID},
		}).Errorf("下载文件失败: %v", err)
		text := textGeneralError
		if errors.Is(err, errDownloadTooLarge) {
			text = fileTooLargeText(b.cfg.Files.MaxFileSize)
		}
		b.edit(ctx, job.ChatID, job.StatusMsg, text, nil)
		b.deps.Channel.Error(job.UserID, "download", err.Error())
		return
	}

	// 步骤2：本地校验
	if _, err := imageinfo.Inspect(inputPath, b.cfg.Files.MaxFileSize); err != nil {
		_ = os.Remove(inputPath)
		logrus.Warnf("图片校验失败 %d: %v", job.UserID, err)
		text := textInvalidImage
		if errors.Is(err, imageinfo.ErrTooLarge) {
			text = fileTooLargeText(b.cfg.Files.MaxFileSize)
		}
		b.edit(ctx, job.ChatID, job.StatusMsg, text, nil)
		return
	}

	// 步骤3：压缩（输入文件由 Compress 删除）
	b.edit(ctx, job.ChatID, job.StatusMsg, textProcessing, nil)
	result := b.deps.Compressor.Compress(ctx, job.UserID, inputPath, job.Format)
	if !result.Success {
		b.edit(ctx, job.ChatID, job.StatusMsg, errorText(result.ErrorKind), nil)
		b.deps.Channel.Error(job.UserID, "compress", string(result.ErrorKind))
		b.logAction(ctx, job.UserID, "compress_failed", map[string]any{"error_kind": string(result.ErrorKind)})
		return
	}
	defer func() {
		if err := os.Remove(result.OutputPath); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("删除输出文件失败 %s: %v", result.OutputPath, err)
		}
	}()

	// 步骤4：回传结果
	doc := tgbotapi.NewDocument(job.ChatID, tgbotapi.FilePath(result.OutputPath))
	doc.Caption = compressionCaption(result)
	if _, err := sendWithRetry(ctx, b.api, doc); err != nil {
		logrus.Errorf("发送结果失败 %d: %v", job.UserID, err)
		b.edit(ctx, job.ChatID, job.StatusMsg, textGeneralError, nil)
		return
	}
	b.deleteMessage(job.ChatID, job.StatusMsg)

	b.logAction(ctx, job.UserID, "compress", map[string]any{
		"format":          string(result.FormatUsed),
		"original_size":   result.OriginalSize,
		"compressed_size": result.CompressedSize,
	})
	b.deps.Channel.ImageProcessed(job.UserID, job.Username, result)
}

// downloadFile 通过 Bot API 文件地址下载，超过大小限制时失败
func (b *Bot) downloadFile(ctx context.Context, fileID, dest string) error {
	url, err := b.api.GetFileDirectURL(fileID)
	if err != nil {
		return fmt.Errorf("获取文件地址失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := b.download.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("下载失败: HTTP %d", resp.StatusCode)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	limit := b.cfg.Files.MaxFileSize
	n, err := io.Copy(out, io.LimitReader(resp.Body, limit+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if n > limit {
		return errDownloadTooLarge
	}
	return nil
}
