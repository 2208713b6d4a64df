package app

import (
	"context"
	"fmt"

	"tvhook/internal/config"
	"tvhook/internal/ingest"
	"tvhook/internal/logger"
	"tvhook/internal/query"
	"tvhook/internal/store"
	"tvhook/internal/store/auditlog"
	apihttp "tvhook/internal/transport/http/api"
	"tvhook/internal/transport/ws"
)

type pinger interface {
	Ping(ctx context.Context) error
}

// healthCheck pings the stores that support it.
func healthCheck(st store.Store, audit *auditlog.Store) func(context.Context) error {
	return func(ctx context.Context) error {
		if p, ok := st.(pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return fmt.Errorf("store: %w", err)
			}
		}
		if audit != nil {
			if err := audit.Ping(ctx); err != nil {
				return fmt.Errorf("audit log: %w", err)
			}
		}
		return nil
	}
}

func buildHTTPServer(cfg *config.Config, st store.Store, ingestSvc *ingest.Service, querySvc *query.Service, audit *auditlog.Store, hub *ws.Hub) (*apihttp.Server, error) {
	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	server, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:        cfg.App.HTTPAddr,
		Ingest:      ingestSvc,
		Query:       querySvc,
		Policy:      cfg.Webhook,
		Audit:       audit,
		Hub:         hub,
		MaxBody:     cfg.Webhook.MaxBodyBytes,
		MetricsPath: metricsPath,
		Health:      healthCheck(st, audit),
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 HTTP 服务失败: %w", err)
	}
	logger.Infof("✓ HTTP 接口监听 %s", server.Addr())
	return server, nil
}
