package app

import (
	"context"
	"fmt"

	"tvhook/internal/config"
	"tvhook/internal/logger"
	apihttp "tvhook/internal/transport/http/api"
	"tvhook/internal/transport/ws"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与 websocket 推送。
type App struct {
	cfg     *config.Config
	server  *apihttp.Server
	hub     *ws.Hub
	closers []func() error
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动服务直到 ctx 取消，退出时释放存储。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Errorf("关闭资源失败: %v", err)
		}
	}()
	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.hub.Run(ctx)
	})
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Close 释放数据库等资源，可重复调用。
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	closers := a.closers
	a.closers = nil
	return closeAll(closers)
}
