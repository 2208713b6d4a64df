package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"tvhook/internal/app"
	"tvhook/internal/config"
	"tvhook/internal/logger"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/config.yaml"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "tvhook",
		Short:         "TradingView webhook receiver and trade lifecycle tracker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default $TVHOOK_CONFIG or "+defaultConfigPath+")")
	root.AddCommand(newServeCmd(), newReplayCmd(), newSymbolsCmd())
	return root
}

func configPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("config"); p != "" {
		return p
	}
	if p := os.Getenv("TVHOOK_CONFIG"); p != "" {
		return p
	}
	return defaultConfigPath
}

func loadConfig(cmd *cobra.Command) (*config.Config, func(), error) {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return nil, nil, fmt.Errorf("读取配置失败: %w", err)
	}
	closer := logger.Configure(logger.FileConfig{
		Path:       cfg.App.LogPath,
		MaxSizeMB:  cfg.App.LogMaxSizeMB,
		MaxBackups: cfg.App.LogMaxBackups,
		MaxAgeDays: cfg.App.LogMaxAgeDays,
		Compress:   cfg.App.LogCompress,
	})
	logger.SetLevel(cfg.App.LogLevel)
	cleanup := func() {
		_ = logger.Sync()
		_ = closer.Close()
	}
	return cfg, cleanup, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cleanup, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			logger.Infof("✓ 配置加载成功（环境=%s）", cfg.App.Env)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := app.NewApp(cfg)
			if err != nil {
				return fmt.Errorf("初始化应用失败: %w", err)
			}
			return a.Run(ctx)
		},
	}
}
