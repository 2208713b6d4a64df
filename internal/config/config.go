package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 TVHOOK_APP_LOG_LEVEL 覆盖 app.log_level。
const EnvPrefix = "TVHOOK"

// envKeys 列出可以通过环境变量覆盖的标量配置项。
var envKeys = []string{
	"app.env", "app.log_level", "app.http_addr", "app.log_path",
	"app.log_max_size_mb", "app.log_max_backups", "app.log_max_age_days", "app.log_compress",
	"database.path", "database.audit_path",
	"grouping.lookback_hours", "grouping.dedupe_window_seconds", "grouping.size_tolerance",
	"webhook.max_body_bytes",
	"symbols.path",
	"metrics.enabled", "metrics.path",
}

// Load 读取配置文件（含 include），叠加环境变量后应用默认值并校验。
func Load(path string) (*Config, error) {
	files, err := resolveConfigIncludes(path)
	if err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigType("yaml")
	for _, file := range files {
		if err := mergeConfigFile(v, file); err != nil {
			return nil, fmt.Errorf("reading config file failed (%s): %w", file, err)
		}
	}
	bindEnv(v)
	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "toml"
		dc.WeaklyTypedInput = true
	}); err != nil {
		return nil, fmt.Errorf("parsing config failed: %w", err)
	}
	cfg.applyDefaults(explicitKeys(v.AllSettings()))
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}
}

func mergeConfigFile(v *viper.Viper, path string) error {
	part := viper.New()
	part.SetConfigFile(path)
	if err := part.ReadInConfig(); err != nil {
		return err
	}
	return v.MergeConfigMap(part.AllSettings())
}

// resolveConfigIncludes 展开 include，被包含文件排在包含者之前，后读的覆盖先读的。
func resolveConfigIncludes(path string) ([]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	var order []string
	done := map[string]bool{}
	if err := walkIncludes(abs, done, map[string]bool{}, &order); err != nil {
		return nil, err
	}
	return order, nil
}

func walkIncludes(path string, done, active map[string]bool, order *[]string) error {
	path = filepath.Clean(path)
	switch {
	case active[path]:
		return fmt.Errorf("include cycle detected: %s", path)
	case done[path]:
		return nil
	}
	active[path] = true
	defer delete(active, path)

	includes, err := readIncludes(path)
	if err != nil {
		return fmt.Errorf("parsing include failed (%s): %w", path, err)
	}
	for _, inc := range includes {
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(filepath.Dir(path), inc)
		}
		if err := walkIncludes(inc, done, active, order); err != nil {
			return err
		}
	}
	done[path] = true
	*order = append(*order, path)
	return nil
}

func readIncludes(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if !v.IsSet("include") {
		return nil, nil
	}
	list, err := cast.ToStringSliceE(v.Get("include"))
	if err != nil {
		return nil, fmt.Errorf("include must be a list of paths: %w", err)
	}
	out := list[:0]
	for _, item := range list {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out, nil
}

// explicitKeys 收集文件或环境变量里真正出现过的叶子路径，默认值不会覆盖它们。
func explicitKeys(settings map[string]any) keySet {
	keys := make(keySet)
	markLeaves("", settings, keys)
	return keys
}

func markLeaves(prefix string, node any, keys keySet) {
	m, err := cast.ToStringMapE(node)
	if err != nil || m == nil {
		keys.mark(prefix)
		return
	}
	for k, child := range m {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		if prefix != "" {
			k = prefix + "." + k
		}
		markLeaves(k, child, keys)
	}
}
