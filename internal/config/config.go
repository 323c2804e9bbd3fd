// Package config loads and validates node configuration files.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/globalbehavior/internal/behavior"
	gotoml "github.com/pelletier/go-toml/v2"
)

var ErrInvalidConfig = errors.New("config: invalid")

type DocumentConfig struct {
	ID        string   `toml:"id"`
	Behaviors []string `toml:"behaviors"`
}

type TickerConfig struct {
	Name      string  `toml:"name"`
	Seconds   float64 `toml:"seconds,omitempty"`
	FPS       float64 `toml:"fps,omitempty"`
	Pattern   []bool  `toml:"pattern"`
	OmitFirst bool    `toml:"omit_first,omitempty"`
	Countdown int     `toml:"countdown,omitempty"`
}

// NodeConfig configures one window context process.
type NodeConfig struct {
	ID                       string           `toml:"id,omitempty"`
	Origin                   string           `toml:"origin"`
	Listen                   string           `toml:"listen,omitempty"`
	Parent                   string           `toml:"parent,omitempty"`
	AdminListen              string           `toml:"admin_listen,omitempty"`
	AdminToken               string           `toml:"admin_token,omitempty"`
	CorsOrigins              []string         `toml:"cors_origins,omitempty"`
	AllowedOrigins           []string         `toml:"allowed_origins,omitempty"`
	ParentMaxConnectAttempts int              `toml:"parent_max_connect_attempts,omitempty"`
	Heartbeat                string           `toml:"heartbeat,omitempty"`
	Documents                []DocumentConfig `toml:"documents,omitempty"`
	Tickers                  []TickerConfig   `toml:"tickers,omitempty"`
}

func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		Origin:      "http://localhost",
		AdminListen: "127.0.0.1:9400",
		CorsOrigins: []string{"http://localhost:3000"},
		Heartbeat:   "30s",
	}
}

// LoadNodeConfig decodes path over DefaultNodeConfig and validates the result.
// Keys absent from the file keep their defaults.
func LoadNodeConfig(path string) (NodeConfig, error) {
	cfg := DefaultNodeConfig()

	var raw NodeConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return NodeConfig{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return NodeConfig{}, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, undecoded[0].String())
	}

	if meta.IsDefined("id") {
		cfg.ID = strings.TrimSpace(raw.ID)
	}
	if meta.IsDefined("origin") {
		cfg.Origin = strings.TrimSpace(raw.Origin)
	}
	if meta.IsDefined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if meta.IsDefined("parent") {
		cfg.Parent = strings.TrimSpace(raw.Parent)
	}
	if meta.IsDefined("admin_listen") {
		cfg.AdminListen = strings.TrimSpace(raw.AdminListen)
	}
	if meta.IsDefined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if meta.IsDefined("cors_origins") {
		cfg.CorsOrigins = normalizeList(raw.CorsOrigins)
	}
	if meta.IsDefined("allowed_origins") {
		cfg.AllowedOrigins = normalizeList(raw.AllowedOrigins)
	}
	if meta.IsDefined("parent_max_connect_attempts") {
		cfg.ParentMaxConnectAttempts = raw.ParentMaxConnectAttempts
	}
	if meta.IsDefined("heartbeat") {
		cfg.Heartbeat = strings.TrimSpace(raw.Heartbeat)
	}
	if meta.IsDefined("documents") {
		cfg.Documents = raw.Documents
	}
	if meta.IsDefined("tickers") {
		cfg.Tickers = raw.Tickers
	}

	if err := ValidateNodeConfig(cfg); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

func ValidateNodeConfig(cfg NodeConfig) error {
	if cfg.ID != "" {
		if _, err := behavior.ParseContextID(cfg.ID); err != nil {
			return fmt.Errorf("%w: id: %v", ErrInvalidConfig, err)
		}
	}
	for key, addr := range map[string]string{
		"listen":       cfg.Listen,
		"parent":       cfg.Parent,
		"admin_listen": cfg.AdminListen,
	} {
		if addr == "" {
			continue
		}
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%w: %s %q: %v", ErrInvalidConfig, key, addr, err)
		}
	}
	if cfg.ParentMaxConnectAttempts < 0 {
		return fmt.Errorf("%w: parent_max_connect_attempts must be >= 0", ErrInvalidConfig)
	}
	if _, err := cfg.HeartbeatInterval(); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Documents))
	for i, doc := range cfg.Documents {
		id := strings.TrimSpace(doc.ID)
		if id == "" {
			return fmt.Errorf("%w: documents[%d] missing id", ErrInvalidConfig, i)
		}
		if strings.Contains(id, behavior.TargetSeparator) {
			return fmt.Errorf("%w: documents[%d] id %q must not contain %q", ErrInvalidConfig, i, id, behavior.TargetSeparator)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: documents[%d] duplicate id %q", ErrInvalidConfig, i, id)
		}
		seen[id] = struct{}{}
	}

	names := make(map[string]struct{}, len(cfg.Tickers))
	for i, t := range cfg.Tickers {
		if err := ValidateTicker(t); err != nil {
			return fmt.Errorf("tickers[%d]: %w", i, err)
		}
		if _, dup := names[t.Name]; dup {
			return fmt.Errorf("%w: tickers[%d] duplicate name %q", ErrInvalidConfig, i, t.Name)
		}
		names[t.Name] = struct{}{}
	}
	return nil
}

func ValidateTicker(t TickerConfig) error {
	if strings.TrimSpace(t.Name) == "" {
		return fmt.Errorf("%w: ticker name is required", ErrInvalidConfig)
	}
	if (t.Seconds > 0) == (t.FPS > 0) {
		return fmt.Errorf("%w: ticker %q needs exactly one of seconds or fps", ErrInvalidConfig, t.Name)
	}
	if t.Seconds < 0 || t.FPS < 0 {
		return fmt.Errorf("%w: ticker %q interval must be positive", ErrInvalidConfig, t.Name)
	}
	if t.Countdown < 0 {
		return fmt.Errorf("%w: ticker %q countdown must be >= 0", ErrInvalidConfig, t.Name)
	}
	return nil
}

// WriteSnapshot writes cfg as TOML, for `config template --from`.
func WriteSnapshot(path string, cfg NodeConfig, overwrite bool) error {
	if err := ValidateNodeConfig(cfg); err != nil {
		return err
	}
	tickers := cfg.Tickers
	cfg.Tickers = nil
	data, err := gotoml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config encode failed: %w", err)
	}
	if len(tickers) > 0 {
		tail, err := gotoml.Marshal(tickerSnapshots(tickers))
		if err != nil {
			return fmt.Errorf("config encode failed: %w", err)
		}
		data = append(append(data, '\n'), tail...)
	}
	return writeFile(path, data, overwrite)
}

// tickerSnapshot keeps a nil pattern out of the file while still writing an
// explicit empty one.
type tickerSnapshot struct {
	Name      string  `toml:"name"`
	Seconds   float64 `toml:"seconds,omitempty"`
	FPS       float64 `toml:"fps,omitempty"`
	Pattern   *[]bool `toml:"pattern,omitempty"`
	OmitFirst bool    `toml:"omit_first,omitempty"`
	Countdown int     `toml:"countdown,omitempty"`
}

type tickerTables struct {
	Tickers []tickerSnapshot `toml:"tickers"`
}

func tickerSnapshots(in []TickerConfig) tickerTables {
	out := make([]tickerSnapshot, 0, len(in))
	for _, t := range in {
		ts := tickerSnapshot{
			Name:      t.Name,
			Seconds:   t.Seconds,
			FPS:       t.FPS,
			OmitFirst: t.OmitFirst,
			Countdown: t.Countdown,
		}
		if t.Pattern != nil {
			p := append([]bool{}, t.Pattern...)
			ts.Pattern = &p
		}
		out = append(out, ts)
	}
	return tickerTables{Tickers: out}
}

func writeFile(path string, data []byte, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, data, 0o600)
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
