package telegram

import (
	"context"
	"time"

	"image-compressor/internal/telemetry"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"
)

// BroadcastResult 广播统计
type BroadcastResult struct {
	Sent   int
	Failed int
	Total  int
}

// Broadcaster 分批复制消息给所有用户，批次之间暂停以避开 Telegram 限流
type Broadcaster struct {
	api       BotInterface
	batchSize int
	pause     time.Duration
	metrics   *telemetry.Metrics
}

func NewBroadcaster(api BotInterface, batchSize int, pause time.Duration, metrics *telemetry.Metrics) *Broadcaster {
	if batchSize <= 0 {
		batchSize = 25
	}
	return &Broadcaster{api: api, batchSize: batchSize, pause: pause, metrics: metrics}
}

// Broadcast 每批结束调用 progress；ctx 取消时提前返回
func (br *Broadcaster) Broadcast(ctx context.Context, userIDs []int64, fromChatID int64, messageID int, progress func(BroadcastResult)) BroadcastResult {
	startTime := time.Now()
	res := BroadcastResult{Total: len(userIDs)}

	for start := 0; start < len(userIDs); start += br.batchSize {
		end := start + br.batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}

		for _, uid := range userIDs[start:end] {
			copyCfg := tgbotapi.NewCopyMessage(uid, fromChatID, messageID)
			if _, err := br.api.Request(copyCfg); err != nil {
				res.Failed++
				br.metrics.IncBroadcast("failed")
				logrus.Debugf("广播到 %d 失败: %v", uid, err)
				continue
			}
			res.Sent++
			br.metrics.IncBroadcast("sent")
		}

		if progress != nil {
			progress(res)
		}
		if end < len(userIDs) && br.pause > 0 {
			select {
			case <-ctx.Done():
				return res
			case <-time.After(br.pause):
			}
		}
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "Broadcast",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"sent":   res.Sent,
			"failed": res.Failed,
			"total":  res.Total,
		},
	}).Info("广播完成")
	return res
}
