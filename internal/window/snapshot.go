package window

import (
	"github.com/danmuck/globalbehavior/internal/behavior"
	"github.com/danmuck/globalbehavior/internal/ticker"
)

// Snapshot is a read-only view of a context for admin surfaces.
type Snapshot struct {
	ID             string          `json:"id"`
	Origin         string          `json:"origin"`
	Version        string          `json:"version"`
	HasParent      bool            `json:"has_parent"`
	Children       []string        `json:"children"`
	AllowedOrigins []string        `json:"allowed_origins"`
	Tickers        []ticker.Status `json:"tickers"`
	Documents      []string        `json:"documents"`
}

func (c *Context) Snapshot() Snapshot {
	s := Snapshot{
		ID:             c.id.String(),
		Origin:         c.origin,
		Version:        Version,
		HasParent:      c.adapter.HasParent(),
		Children:       idStrings(c.adapter.Children()),
		AllowedOrigins: c.filter.Origins(),
		Tickers:        c.tickers.List(),
		Documents:      []string{},
	}
	if c.host != nil {
		if reg := c.host.Registry(); reg != nil {
			s.Documents = append(s.Documents, reg.DocumentIDs()...)
		}
	}
	return s
}

func idStrings(ids []behavior.ContextID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
