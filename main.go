package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"stimrun/internal/clock"
	"stimrun/internal/config"
	"stimrun/internal/db"
	"stimrun/internal/display"
	"stimrun/internal/engine"
	"stimrun/internal/flip"
	"stimrun/internal/input"
	"stimrun/internal/log"
	"stimrun/internal/router"
	"stimrun/internal/service"
	"stimrun/internal/stim"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "配置文件路径")
	participant := flag.String("participant", "", "被试编号，覆盖配置")
	session := flag.String("session", "", "session 编号，覆盖配置")
	flag.Parse()

	// 加载配置
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		stdlog.Fatalf("加载配置失败: %v", err)
	}

	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		stdlog.Fatalf("打开日志文件失败: %v", err)
	}
	defer closeLog()

	// 初始化数据库
	if err := db.InitDB(cfg, logger.With("db")); err != nil {
		stdlog.Fatalf("初始化数据库失败: %v", err)
	}

	hub := input.NewHub()
	dev := service.Device{Hub: hub, Source: clock.System}
	var window *display.Window
	switch cfg.Display.Backend {
	case "ebiten":
		window = display.New(display.Options{
			Title:      cfg.Experiment.Name,
			Width:      cfg.Display.Width,
			Height:     cfg.Display.Height,
			Fullscreen: cfg.Display.Fullscreen,
			RefreshHz:  cfg.Display.RefreshHz,
			Background: stim.Grey,
		}, hub, logger.With("display"))
		dev.Backend = window
	case "virtual":
		src := clock.NewVirtual(time.Now())
		dev.Backend = flip.NewVirtual(src, cfg.Display.RefreshHz)
		dev.Source = src
	case "paced":
		dev.Backend = flip.NewPaced(cfg.Display.RefreshHz)
		go readStdinKeys(hub, logger.With("stdin"))
	}

	// 初始化服务
	svcCtx := service.NewServiceContext(cfg, dev, logger)

	if cfg.Server.Port > 0 {
		r := router.SetupRouter(svcCtx)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Server.Port)
			logger.Infof("控制台启动在 %s", addr)
			if err := r.Run(addr); err != nil {
				logger.Errorf("控制台退出: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	req := service.SessionRequest{Participant: *participant, Session: *session}
	done := make(chan error, 1)
	go func() {
		_, err := svcCtx.Sessions.Run(ctx, req)
		if window != nil {
			window.Finish()
		}
		done <- err
	}()

	// ebiten 必须跑在主 goroutine
	if window != nil {
		if err := window.Run(); err != nil {
			logger.Errorf("窗口异常退出: %v", err)
		}
	}
	err = <-done
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrAborted):
		// 中止不写数据，直接退出
		logger.Warnf("实验已中止: %v", err)
		closeLog()
		os.Exit(1)
	default:
		logger.Errorf("实验失败: %v", err)
		closeLog()
		os.Exit(2)
	}
}

func newLogger(c config.LogConfig) (*log.Logger, func(), error) {
	level := log.LevelFromString(c.Level)
	if c.File == "" {
		return log.New(os.Stderr, level), func() {}, nil
	}
	f, err := os.OpenFile(c.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return log.New(f, level), func() { _ = f.Close() }, nil
}

// readStdinKeys 无窗口时从终端读按键，每行一个键名
func readStdinKeys(hub *input.Hub, logger *log.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		key := strings.ToLower(strings.TrimSpace(sc.Text()))
		if key == "" {
			key = "space"
		}
		hub.Push(key, time.Now())
	}
	if err := sc.Err(); err != nil {
		logger.Warnf("读取终端输入失败: %v", err)
	}
}
