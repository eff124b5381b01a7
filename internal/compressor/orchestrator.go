// 文件: internal/compressor/orchestrator.go
package compressor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"image-compressor/internal/models"
	"image-compressor/internal/telemetry"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CallLogger 上游调用审计日志
type CallLogger interface {
	SaveAPICallLog(ctx context.Context, entry models.APICallLog) error
}

// Orchestrator 串联 Resolver -> Executor -> Accountant
type Orchestrator struct {
	resolver   *Resolver
	executor   *Executor
	accountant *Accountant
	callLog    CallLogger
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	outputDir  string
}

// NewOrchestrator callLog 与 metrics 可为 nil
func NewOrchestrator(resolver *Resolver, executor *Executor, accountant *Accountant, callLog CallLogger, metrics *telemetry.Metrics, outputDir string) *Orchestrator {
	return &Orchestrator{
		resolver:   resolver,
		executor:   executor,
		accountant: accountant,
		callLog:    callLog,
		metrics:    metrics,
		tracer:     otel.Tracer("image-compressor/compressor"),
		outputDir:  outputDir,
	}
}

// Compress 压缩一个已落盘的输入文件；输入文件在任何路径下都会被删除
func (o *Orchestrator) Compress(ctx context.Context, userID int64, inputPath string, target models.Format) models.Result {
	startTime := time.Now()
	defer func() {
		if err := os.Remove(inputPath); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("删除输入临时文件失败 %s: %v", inputPath, err)
		}
	}()

	// 上游调用不随聊天事件取消，只受 Executor 超时约束
	ctx = context.WithoutCancel(ctx)
	ctx, span := o.tracer.Start(ctx, "compressor.Compress", trace.WithAttributes(
		attribute.Int64("user.id", userID),
		attribute.String("image.target_format", string(target)),
	))
	defer span.End()

	// 步骤1：解析 Key
	apiKey := o.resolver.Resolve(ctx, userID)

	// 步骤2：执行压缩
	job := models.CompressionJob{
		InputPath:    inputPath,
		OutputPath:   o.outputPathFor(inputPath, target),
		UserID:       userID,
		TargetFormat: target,
	}
	result := o.executor.Execute(ctx, job, apiKey)

	// 步骤3：仅成功时记账
	if result.Success {
		if err := o.accountant.Record(ctx, userID, result.OriginalSize, result.CompressedSize); err != nil {
			span.AddEvent("usage record failed")
		}
		span.SetAttributes(
			attribute.Int64("image.original_size", result.OriginalSize),
			attribute.Int64("image.compressed_size", result.CompressedSize),
		)
	} else {
		span.SetStatus(codes.Error, string(result.ErrorKind))
	}

	o.logCall(ctx, userID, apiKey, result)
	o.metrics.ObserveJob(string(result.FormatUsed), outcome(result), time.Since(startTime), result.SavedBytes)
	return result
}

// Stats 读取用户用量
func (o *Orchestrator) Stats(ctx context.Context, userID int64) (models.UsageStats, error) {
	return o.accountant.Stats(ctx, userID)
}

func (o *Orchestrator) logCall(ctx context.Context, userID int64, apiKey string, result models.Result) {
	if o.callLog == nil {
		return
	}
	entry := models.APICallLog{
		UserID:         userID,
		APIKey:         MaskKey(apiKey),
		Success:        result.Success,
		ErrorKind:      result.ErrorKind,
		OriginalSize:   result.OriginalSize,
		CompressedSize: result.CompressedSize,
		Format:         result.FormatUsed,
		Timestamp:      time.Now().UTC(),
	}
	if err := o.callLog.SaveAPICallLog(ctx, entry); err != nil {
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "logCall",
			"data":   logrus.Fields{"user_id": userID},
		}).Warnf("写入API调用日志失败: %v", err)
	}
}

// outputPathFor 输出文件放在 outputDir，转换时替换扩展名
func (o *Orchestrator) outputPathFor(inputPath string, target models.Format) string {
	base := filepath.Base(inputPath)
	if ext := target.Extension(); ext != "" {
		base = strings.TrimSuffix(base, filepath.Ext(base)) + ext
	}
	dir := o.outputDir
	if dir == "" {
		dir = filepath.Dir(inputPath)
	}
	return filepath.Join(dir, "compressed_"+base)
}

func outcome(r models.Result) string {
	if r.Success {
		return "success"
	}
	return string(r.ErrorKind)
}
