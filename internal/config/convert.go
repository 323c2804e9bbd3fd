package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/globalbehavior/internal/behavior"
	"github.com/danmuck/globalbehavior/internal/ticker"
	"github.com/danmuck/globalbehavior/internal/transport"
)

func (t TickerConfig) Interval() ticker.Interval {
	if t.FPS > 0 {
		return ticker.FPS(t.FPS)
	}
	return ticker.Seconds(t.Seconds)
}

// Options keeps an explicit empty pattern distinct from no pattern.
func (t TickerConfig) Options() ticker.Options {
	var pattern []bool
	if t.Pattern != nil {
		pattern = append([]bool{}, t.Pattern...)
	}
	return ticker.Options{
		Pattern:   pattern,
		OmitFirst: t.OmitFirst,
		Countdown: t.Countdown,
	}
}

// ContextID returns the configured id, or a fresh one when unset.
func (c NodeConfig) ContextID() (behavior.ContextID, error) {
	if strings.TrimSpace(c.ID) == "" {
		return behavior.NewContextID(), nil
	}
	return behavior.ParseContextID(c.ID)
}

func (c NodeConfig) HeartbeatInterval() (time.Duration, error) {
	if strings.TrimSpace(c.Heartbeat) == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Heartbeat)
	if err != nil {
		return 0, fmt.Errorf("%w: heartbeat: %v", ErrInvalidConfig, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: heartbeat must be >= 0", ErrInvalidConfig)
	}
	return d, nil
}

func (c NodeConfig) TransportConfig() transport.Config {
	cfg := transport.DefaultConfig()
	cfg.MaxConnectAttempts = c.ParentMaxConnectAttempts
	return cfg
}
