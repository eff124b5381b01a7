// 文件: internal/compressor/executor.go
package compressor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"image-compressor/internal/models"
	"image-compressor/internal/tinify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Provider 上游压缩服务
type Provider interface {
	Shrink(ctx context.Context, apiKey string, body io.Reader) (*tinify.ShrinkResult, error)
	Fetch(ctx context.Context, apiKey, location string, format models.Format, w io.Writer) (int64, error)
}

// Executor 执行单次压缩：本地校验、一次上游往返、原子写出结果
type Executor struct {
	provider Provider
	timeout  time.Duration
	onCount  func(int)
}

// NewExecutor 创建 Executor，timeout<=0 时使用 30s
func NewExecutor(provider Provider, timeout time.Duration) *Executor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{provider: provider, timeout: timeout}
}

// OnCompressionCount 注册上游剩余额度回调
func (e *Executor) OnCompressionCount(fn func(int)) {
	e.onCount = fn
}

// Execute 执行压缩，所有失败都以 ErrorKind 返回
func (e *Executor) Execute(ctx context.Context, job models.CompressionJob, apiKey string) models.Result {
	startTime := time.Now()

	// 步骤1：校验格式
	format, err := models.ParseFormat(string(job.TargetFormat))
	if err != nil {
		// 未知格式不进入结果与指标标签
		return e.reject(job, models.FormatOriginal, "目标格式不支持", err)
	}

	// 步骤2：校验输入文件
	info, err := os.Stat(job.InputPath)
	if err != nil {
		return e.reject(job, format, "输入文件不可读", err)
	}
	if info.IsDir() || info.Size() == 0 {
		return e.reject(job, format, "输入文件为空", nil)
	}

	// 步骤3：校验输出路径
	outputPath := OutputPathFor(job.OutputPath, format)
	if outputPath == "" {
		return e.reject(job, format, "输出路径为空", nil)
	}
	if dir, err := os.Stat(filepath.Dir(outputPath)); err != nil || !dir.IsDir() {
		return e.reject(job, format, "输出目录不存在", err)
	}

	// 步骤4：上游压缩
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	compressedSize, err := e.roundTrip(callCtx, job.InputPath, outputPath, format, apiKey)
	if err != nil {
		kind := classify(err)
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "Execute",
			"took":   time.Since(startTime),
			"data": logrus.Fields{
				"user_id":    job.UserID,
				"format":     format,
				"error_kind": kind,
			},
		}).Warnf("压缩失败: %v", err)
		return models.Failed(kind, format)
	}

	result := models.Succeeded(info.Size(), compressedSize, format, outputPath)
	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "Execute",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"user_id":         job.UserID,
			"format":          format,
			"original_size":   result.OriginalSize,
			"compressed_size": result.CompressedSize,
		},
	}).Info("压缩成功")
	return result
}

// roundTrip 上传、下载并写入临时文件后重命名
func (e *Executor) roundTrip(ctx context.Context, inputPath, outputPath string, format models.Format, apiKey string) (int64, error) {
	in, err := os.Open(inputPath)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	shrunk, err := e.provider.Shrink(ctx, apiKey, in)
	if err != nil {
		return 0, err
	}
	if e.onCount != nil {
		e.onCount(shrunk.CompressionCount)
	}

	tmpPath := outputPath + ".tmp-" + uuid.NewString()
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = out.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := e.provider.Fetch(ctx, apiKey, shrunk.Location, format, out)
	if err != nil {
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return 0, err
	}
	committed = true
	return n, nil
}

func (e *Executor) reject(job models.CompressionJob, format models.Format, reason string, err error) models.Result {
	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "Execute",
		"data": logrus.Fields{
			"user_id": job.UserID,
			"input":   job.InputPath,
			"output":  job.OutputPath,
			"target":  job.TargetFormat,
		},
	}).Warnf("%s: %v", reason, err)
	return models.Failed(models.ErrorKindClientInputInvalid, format)
}

// OutputPathFor 目标为 webp 时强制使用 .webp 扩展名
func OutputPathFor(path string, format models.Format) string {
	if path == "" || format != models.FormatWebP {
		return path
	}
	ext := filepath.Ext(path)
	if strings.EqualFold(ext, ".webp") {
		return path
	}
	return strings.TrimSuffix(path, ext) + ".webp"
}

// classify 上游错误到 ErrorKind 的唯一映射点
func classify(err error) models.ErrorKind {
	switch tinify.KindOf(err) {
	case tinify.KindAccount:
		return models.ErrorKindCredentialInvalid
	case tinify.KindClient:
		return models.ErrorKindClientInputInvalid
	case tinify.KindServer, tinify.KindConnection:
		return models.ErrorKindServiceUnavailable
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return models.ErrorKindServiceUnavailable
	}
	return models.ErrorKindUnknown
}
