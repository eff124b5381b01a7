package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"image-compressor/internal/app"
	"image-compressor/internal/config"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

func main() {
	startTime := time.Now()

	// 步骤1：解析命令行参数
	configFile := flag.String("config", "config.yaml", "配置文件路径")
	flag.Parse()

	// 步骤2：加载配置
	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logrus.Fatalf(color.RedString("加载配置失败: %v"), err)
	}

	// 步骤3：组装组件
	initCtx, cancelInit := context.WithTimeout(context.Background(), 30*time.Second)
	application, err := app.New(initCtx, cfg)
	cancelInit()
	if err != nil {
		logrus.Fatalf(color.RedString("初始化失败: %v"), err)
	}

	// 步骤4：启动
	logrus.WithFields(logrus.Fields{
		"time":   time.Now().Format("2006-01-02 15:04:05"),
		"method": "main",
		"took":   time.Since(startTime),
	}).Info(color.GreenString("image-compressor 启动中..."))
	application.Start()

	// 步骤5：等待系统信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	logrus.Info(color.YellowString("image-compressor 已启动，等待中断信号..."))
	<-sigChan

	// 步骤6：优雅关闭，超时强制退出
	logrus.Info(color.YellowString("收到关闭信号，开始优雅关闭..."))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	done := make(chan struct{})
	stopStart := time.Now()
	go func() {
		application.Stop(ctx)
		close(done)
	}()

	select {
	case <-done:
		logrus.WithFields(logrus.Fields{
			"time":   time.Now().Format("2006-01-02 15:04:05"),
			"method": "main",
			"took":   time.Since(stopStart),
		}).Info(color.GreenString("image-compressor 关闭完成"))
	case <-ctx.Done():
		logrus.Error(color.RedString("优雅关闭超时，强制终止进程"))
		os.Exit(1)
	}
}
