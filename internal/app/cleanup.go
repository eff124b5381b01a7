package app

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

func (a *App) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Files.CleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.runCleanup(now)
		}
	}
}

func (a *App) runCleanup(now time.Time) {
	startTime := time.Now()

	removed, err := CleanTempDir(a.cfg.Files.TempDir, a.cfg.Files.TempMaxAge, now)
	if err != nil {
		logrus.Warnf("清理临时目录失败: %v", err)
	}
	pruned := 0
	if a.memLimiter != nil {
		pruned = a.memLimiter.Cleanup(a.cfg.Files.TempMaxAge)
	}

	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "runCleanup",
		"took":   time.Since(startTime),
		"data": logrus.Fields{
			"files_removed":  removed,
			"limiter_pruned": pruned,
		},
	}).Info("周期清理完成")
}

// CleanTempDir 删除 dir 下修改时间早于 now-maxAge 的普通文件，返回删除数量
func CleanTempDir(dir string, maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !os.IsNotExist(err) {
			logrus.Warnf("删除临时文件失败 %s: %v", entry.Name(), err)
			continue
		}
		removed++
	}
	return removed, nil
}
