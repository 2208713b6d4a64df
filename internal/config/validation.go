package config

import (
	"fmt"
	"strings"

	"tvhook/internal/pkg/symbol"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Database.validate(); err != nil {
		return err
	}
	if err := c.Grouping.validate(); err != nil {
		return err
	}
	if err := c.Webhook.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch a.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("app.log_level must be one of debug/info/warn/error, got %q", a.LogLevel)
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	if a.LogMaxSizeMB < 0 || a.LogMaxBackups < 0 || a.LogMaxAgeDays < 0 {
		return fmt.Errorf("app log rotation settings must be >= 0")
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	if strings.TrimSpace(d.Path) == "" {
		return fmt.Errorf("database.path cannot be empty")
	}
	if strings.TrimSpace(d.AuditPath) == "" {
		return fmt.Errorf("database.audit_path cannot be empty")
	}
	if strings.TrimSpace(d.Path) == strings.TrimSpace(d.AuditPath) {
		return fmt.Errorf("database.audit_path must differ from database.path")
	}
	return nil
}

func (g *GroupingConfig) validate() error {
	if g.LookbackHours <= 0 {
		return fmt.Errorf("grouping.lookback_hours must be > 0")
	}
	if g.DedupeWindowSeconds <= 0 {
		return fmt.Errorf("grouping.dedupe_window_seconds must be > 0")
	}
	if g.SizeTolerance <= 0 {
		return fmt.Errorf("grouping.size_tolerance must be > 0")
	}
	return nil
}

func (w *WebhookConfig) validate() error {
	if len(w.Brokers) == 0 {
		return fmt.Errorf("webhook.brokers requires at least one broker")
	}
	for _, b := range w.Brokers {
		if _, ok := symbol.ForBroker(b); !ok {
			return fmt.Errorf("webhook.brokers contains unsupported broker: %s", b)
		}
	}
	for id, owner := range w.Owners {
		if strings.TrimSpace(owner) == "" {
			return fmt.Errorf("webhook.owners.%s maps to an empty owner", id)
		}
	}
	if w.MaxBodyBytes <= 0 {
		return fmt.Errorf("webhook.max_body_bytes must be > 0")
	}
	return nil
}

func (m *MetricsConfig) validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}
