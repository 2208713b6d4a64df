package app

import (
	"fmt"
	"sort"
	"strings"

	"tvhook/internal/config"
	cfgloader "tvhook/internal/config/loader"
	"tvhook/internal/logger"
)

type StartupSummary struct {
	HTTPAddr      string
	LogLevel      string
	MetricsPath   string
	Database      string
	AuditLog      string
	Brokers       []string
	Owners        []string
	Lookback      string
	DedupeWindow  string
	SizeTolerance float64
	SymbolEntries int
	SymbolsPath   string
}

func newStartupSummary(cfg *config.Config, snap cfgloader.SymbolSnapshot) *StartupSummary {
	owners := make([]string, 0, len(cfg.Webhook.Owners))
	for id, owner := range cfg.Webhook.Owners {
		owners = append(owners, id+"→"+owner)
	}
	sort.Strings(owners)
	metricsPath := "-"
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}
	return &StartupSummary{
		HTTPAddr:      cfg.App.HTTPAddr,
		LogLevel:      logger.Level(),
		MetricsPath:   metricsPath,
		Database:      cfg.Database.Path,
		AuditLog:      cfg.Database.AuditPath,
		Brokers:       cfg.Webhook.Brokers,
		Owners:        owners,
		Lookback:      cfg.Grouping.Lookback().String(),
		DedupeWindow:  cfg.Grouping.DedupeWindow().String(),
		SizeTolerance: cfg.Grouping.SizeTolerance,
		SymbolEntries: snap.Len(),
		SymbolsPath:   cfg.Symbols.Path,
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[服务 (SERVER)]")
	fmt.Printf("  监听地址: %s\n", s.HTTPAddr)
	fmt.Printf("  日志级别: %s\n", s.LogLevel)
	fmt.Printf("  指标路径: %s\n", s.MetricsPath)
	fmt.Println()

	fmt.Println("[存储 (STORAGE)]")
	fmt.Printf("  分组数据库: %s\n", s.Database)
	fmt.Printf("  审计日志:   %s\n", s.AuditLog)
	fmt.Println()

	fmt.Println("[Webhook]")
	fmt.Printf("  券商: %s\n", formatList(s.Brokers))
	fmt.Printf("  标识映射: %s\n", formatList(s.Owners))
	fmt.Println()

	fmt.Println("[分组 (GROUPING)]")
	fmt.Printf("  回溯窗口: %s\n", s.Lookback)
	fmt.Printf("  去重窗口: %s\n", s.DedupeWindow)
	fmt.Printf("  仓位容差: %g\n", s.SizeTolerance)
	fmt.Printf("  品种配置: %s (%d 条)\n", s.SymbolsPath, s.SymbolEntries)
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
