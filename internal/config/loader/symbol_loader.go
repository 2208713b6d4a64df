package loader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tvhook/internal/logger"
	"tvhook/internal/pkg/symbol"

	"github.com/fsnotify/fsnotify"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultTPCount 未配置时报告的止盈档位数量。
const DefaultTPCount = 3

// SymbolSettings 描述单个品种的展示与统计参数。
type SymbolSettings struct {
	TPCount     int    `mapstructure:"tp_count" yaml:"tp_count,omitempty"`
	SLCount     int    `mapstructure:"sl_count" yaml:"sl_count,omitempty"`
	DisplayName string `mapstructure:"display_name" yaml:"display_name,omitempty"`
}

// SymbolFile 是 symbols.yaml 的完整结构：owner -> broker -> symbol。
type SymbolFile struct {
	Defaults SymbolSettings                                  `mapstructure:"defaults" yaml:"defaults"`
	Owners   map[string]map[string]map[string]SymbolSettings `mapstructure:"owners" yaml:"owners,omitempty"`
}

// SymbolSnapshot 对外暴露的只读快照。
type SymbolSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Defaults SymbolSettings
	entries  map[string]SymbolSettings
}

// Resolve returns the settings for owner/broker/symbol merged over defaults.
func (s SymbolSnapshot) Resolve(owner, broker, symbol string) SymbolSettings {
	out := s.Defaults
	if out.TPCount <= 0 {
		out.TPCount = DefaultTPCount
	}
	if out.SLCount <= 0 {
		out.SLCount = 1
	}
	entry, ok := s.entries[entryKey(owner, broker, symbol)]
	if !ok {
		return out
	}
	if entry.TPCount > 0 {
		out.TPCount = entry.TPCount
	}
	if entry.SLCount > 0 {
		out.SLCount = entry.SLCount
	}
	if entry.DisplayName != "" {
		out.DisplayName = entry.DisplayName
	}
	return out
}

func (s SymbolSnapshot) Len() int { return len(s.entries) }

// File rebuilds the owner -> broker -> symbol tree from the snapshot with
// normalized keys: owner and broker lower-case, symbols canonical.
func (s SymbolSnapshot) File() SymbolFile {
	out := SymbolFile{Defaults: s.Defaults}
	for key, settings := range s.entries {
		parts := strings.SplitN(key, "|", 3)
		if len(parts) != 3 {
			continue
		}
		if out.Owners == nil {
			out.Owners = make(map[string]map[string]map[string]SymbolSettings)
		}
		brokers := out.Owners[parts[0]]
		if brokers == nil {
			brokers = make(map[string]map[string]SymbolSettings)
			out.Owners[parts[0]] = brokers
		}
		if brokers[parts[1]] == nil {
			brokers[parts[1]] = make(map[string]SymbolSettings)
		}
		brokers[parts[1]][parts[2]] = settings
	}
	return out
}

// ChangeListener 在配置变更时被调用。
type ChangeListener func(SymbolSnapshot)

// SymbolLoader 负责从 YAML 文件中加载品种配置，并监听热更新。
type SymbolLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  SymbolSnapshot
	listeners []ChangeListener
}

// NewSymbolLoader 读取配置文件并开始监听 FS 事件。文件不存在时使用默认值且不监听。
func NewSymbolLoader(path string) (*SymbolLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("symbol loader requires path")
	}
	loader := &SymbolLoader{path: path}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		logger.Warnf("symbol config %s not found, using defaults", path)
		loader.snapshot = SymbolSnapshot{Version: 1, LoadedAt: time.Now()}
		return loader, nil
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read symbol config failed: %w", err)
	}
	loader.v = v
	if err := loader.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := loader.reload(); err != nil {
			logger.Errorf("symbol config reload failed (%s): %v", evt.Name, err)
			return
		}
		loader.notify()
	})
	v.WatchConfig()
	return loader, nil
}

// Snapshot 返回当前配置快照。
func (l *SymbolLoader) Snapshot() SymbolSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// TPCount returns the number of take-profit levels to report.
func (l *SymbolLoader) TPCount(owner, broker, symbol string) int {
	if l == nil {
		return DefaultTPCount
	}
	return l.Snapshot().Resolve(owner, broker, symbol).TPCount
}

// DisplayName returns the configured label for a symbol, or "".
func (l *SymbolLoader) DisplayName(owner, broker, symbol string) string {
	if l == nil {
		return ""
	}
	return l.Snapshot().Resolve(owner, broker, symbol).DisplayName
}

// Subscribe 注册监听器，并立即收到一次完整快照。
func (l *SymbolLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	go safeCall(fn, snap)
}

func (l *SymbolLoader) notify() {
	l.mu.RLock()
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go safeCall(fn, snap)
	}
}

func safeCall(fn ChangeListener, snap SymbolSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("symbol listener panic: %v", r)
		}
	}()
	fn(snap)
}

func (l *SymbolLoader) reload() error {
	var file SymbolFile
	if err := l.v.Unmarshal(&file, func(dc *mapstructure.DecoderConfig) {
		dc.WeaklyTypedInput = true
	}); err != nil {
		return fmt.Errorf("parse symbol config failed: %w", err)
	}
	entries := make(map[string]SymbolSettings)
	for owner, brokers := range file.Owners {
		for broker, symbols := range brokers {
			for sym, settings := range symbols {
				entries[entryKey(owner, broker, sym)] = settings
			}
		}
	}
	l.mu.Lock()
	l.snapshot = SymbolSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Defaults: file.Defaults,
		entries:  entries,
	}
	l.mu.Unlock()
	logger.Infof("Symbol loader reloaded %d symbols from %s", len(entries), filepath.Base(l.path))
	return nil
}

// EncodeSymbolFile writes file as YAML to w.
func EncodeSymbolFile(w io.Writer, file SymbolFile) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return fmt.Errorf("encode symbol config: %w", err)
	}
	return enc.Close()
}

// WriteSymbolFile 将品种配置写回 YAML，写入临时文件后原子替换。
func WriteSymbolFile(path string, file SymbolFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("encode symbol config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// viper 会把 key 转成小写，这里统一 owner/broker 小写；symbol 可以写成券商格式
// （BTC-USDT、EUR_USD），统一转回规范形式。
func entryKey(owner, broker, sym string) string {
	broker = strings.ToLower(strings.TrimSpace(broker))
	canonical := symbol.Canonical(sym)
	if conv, ok := symbol.ForBroker(broker); ok {
		canonical = conv.FromExchange(sym)
	}
	return strings.ToLower(strings.TrimSpace(owner)) + "|" + broker + "|" + canonical
}
