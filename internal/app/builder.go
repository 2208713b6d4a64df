package app

import (
	"context"
	"fmt"

	"tvhook/internal/config"
	cfgloader "tvhook/internal/config/loader"
	"tvhook/internal/grouping"
	"tvhook/internal/ingest"
	"tvhook/internal/logger"
	"tvhook/internal/query"
	"tvhook/internal/store"
	"tvhook/internal/store/auditlog"
	"tvhook/internal/store/gormstore"
	"tvhook/internal/transport/ws"

	"go.uber.org/multierr"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn   func(path string) (store.Store, error)
	auditFn   func(path string) (*auditlog.Store, error)
	symbolsFn func(path string) (*cfgloader.SymbolLoader, error)
}

type AppBuilderOption func(*AppBuilder)

// WithStoreFactory replaces the relational store, mainly for tests.
func WithStoreFactory(fn func(path string) (store.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) {
		if fn != nil {
			b.storeFn = fn
		}
	}
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:       cfg,
		storeFn:   openGormStore,
		auditFn:   auditlog.New,
		symbolsFn: cfgloader.NewSymbolLoader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openGormStore(path string) (store.Store, error) {
	return gormstore.NewGormStore(path)
}

func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	logger.SetLevel(cfg.App.LogLevel)

	var closers []func() error
	defer func() {
		if err != nil {
			err = multierr.Append(err, closeAll(closers))
		}
	}()

	st, err := b.storeFn(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	closers = append(closers, st.Close)
	logger.Infof("✓ 交易分组数据库: %s", cfg.Database.Path)

	audit, err := b.auditFn(cfg.Database.AuditPath)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	closers = append(closers, audit.Close)
	logger.Infof("✓ webhook 审计日志: %s", cfg.Database.AuditPath)

	symbols, err := b.symbolsFn(cfg.Symbols.Path)
	if err != nil {
		return nil, fmt.Errorf("load symbol settings: %w", err)
	}
	symbols.Subscribe(func(snap cfgloader.SymbolSnapshot) {
		logger.Infof("品种配置已加载 version=%d entries=%d", snap.Version, snap.Len())
	})

	hub := ws.NewHub()
	ingestSvc := NewIngestService(cfg.Grouping, store.Lookup{Store: st}, ingest.StoreSink{Store: st},
		ingest.WithAudit(audit), ingest.WithPublisher(hub))
	querySvc := query.NewService(st, audit, symbols)

	server, err := buildHTTPServer(cfg, st, ingestSvc, querySvc, audit, hub)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:     cfg,
		server:  server,
		hub:     hub,
		closers: closers,
		Summary: newStartupSummary(cfg, symbols.Snapshot()),
	}, nil
}

// NewIngestService wires the grouping engine with the configured windows.
func NewIngestService(cfg config.GroupingConfig, lookup grouping.GroupLookup, sink ingest.Sink, opts ...ingest.Option) *ingest.Service {
	engine := grouping.New(lookup,
		grouping.WithLookback(cfg.Lookback()),
		grouping.WithDedupeWindow(cfg.DedupeWindow()),
		grouping.WithSizeTolerance(cfg.SizeTolerance),
	)
	return ingest.NewService(engine, sink, opts...)
}

func closeAll(closers []func() error) error {
	var err error
	for i := len(closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, closers[i]())
	}
	return err
}

// provideAppBuilder / provideAppFromBuilder are the wire providers.
func provideAppBuilder(cfg *config.Config) *AppBuilder {
	return NewAppBuilder(cfg)
}

type appBuilderDeps interface {
	Build(context.Context) (*App, error)
}

func provideAppFromBuilder(b appBuilderDeps, ctx context.Context) (*App, error) {
	return b.Build(ctx)
}
