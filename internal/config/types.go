package config

import (
	"strings"
	"time"
)

// Config 是 tvhook 的主配置载体。
type Config struct {
	App      AppConfig      `toml:"app"`
	Database DatabaseConfig `toml:"database"`
	Grouping GroupingConfig `toml:"grouping"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Symbols  SymbolsConfig  `toml:"symbols"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

type AppConfig struct {
	Env           string `toml:"env"`
	LogLevel      string `toml:"log_level"`
	HTTPAddr      string `toml:"http_addr"`
	LogPath       string `toml:"log_path"`
	LogMaxSizeMB  int    `toml:"log_max_size_mb"`
	LogMaxBackups int    `toml:"log_max_backups"`
	LogMaxAgeDays int    `toml:"log_max_age_days"`
	LogCompress   bool   `toml:"log_compress"`
}

type DatabaseConfig struct {
	Path      string `toml:"path"`
	AuditPath string `toml:"audit_path"`
}

// GroupingConfig 控制交易分组引擎的窗口与容差。
type GroupingConfig struct {
	LookbackHours       int     `toml:"lookback_hours"`
	DedupeWindowSeconds int     `toml:"dedupe_window_seconds"`
	SizeTolerance       float64 `toml:"size_tolerance"`
}

func (g GroupingConfig) Lookback() time.Duration {
	return time.Duration(g.LookbackHours) * time.Hour
}

func (g GroupingConfig) DedupeWindow() time.Duration {
	return time.Duration(g.DedupeWindowSeconds) * time.Second
}

// WebhookConfig 描述 webhook 入口：允许的券商、identifier 到 owner 的映射以及 IP 白名单。
// 注意 viper 会把 map 的 key 统一转成小写。
type WebhookConfig struct {
	Brokers      []string            `toml:"brokers"`
	Owners       map[string]string   `toml:"owners"`
	AllowedIPs   map[string][]string `toml:"allowed_ips"`
	MaxBodyBytes int64               `toml:"max_body_bytes"`
}

// ResolveOwner maps a URL identifier to an owner id. Without an owners map
// the identifier is the owner.
func (w WebhookConfig) ResolveOwner(identifier string) (string, bool) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return "", false
	}
	if len(w.Owners) == 0 {
		return identifier, true
	}
	owner, ok := w.Owners[strings.ToLower(identifier)]
	owner = strings.TrimSpace(owner)
	return owner, ok && owner != ""
}

func (w WebhookConfig) BrokerEnabled(broker string) bool {
	broker = strings.ToLower(strings.TrimSpace(broker))
	for _, b := range w.Brokers {
		if strings.ToLower(strings.TrimSpace(b)) == broker {
			return true
		}
	}
	return false
}

// IPAllowed reports whether ip may post for owner. An owner without an
// allow list accepts any address.
func (w WebhookConfig) IPAllowed(owner, ip string) bool {
	list := w.AllowedIPs[strings.ToLower(strings.TrimSpace(owner))]
	if len(list) == 0 {
		return true
	}
	ip = strings.TrimSpace(ip)
	for _, allowed := range list {
		if strings.TrimSpace(allowed) == ip {
			return true
		}
	}
	return false
}

type SymbolsConfig struct {
	Path string `toml:"path"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// keySet 用于追踪配置文件中显式设置的字段路径。
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault 描述单个字段的默认值设置规则。
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
