package window

import (
	"github.com/danmuck/globalbehavior/internal/ticker"
)

// DocumentAPI is the surface attached to each loaded document. Every method
// acts on the owning context.
type DocumentAPI struct {
	ctx   *Context
	docID string
}

func (d *DocumentAPI) DocumentID() string { return d.docID }

func (d *DocumentAPI) TriggerCustomBehaviorNamed(name string) {
	d.ctx.TriggerCustomBehaviorNamed(name)
}

func (d *DocumentAPI) AllowPostMessageFrom(origin string) {
	d.ctx.AllowPostMessageFrom(origin)
}

func (d *DocumentAPI) StartCustomBehaviorTicker(name string, every ticker.Interval, opts ticker.Options) {
	d.ctx.StartCustomBehaviorTicker(name, every, opts)
}

func (d *DocumentAPI) StopCustomBehaviorTicker(name string) {
	d.ctx.StopCustomBehaviorTicker(name)
}

func (d *DocumentAPI) StopAllCustomBehaviorTicker() {
	d.ctx.StopAllCustomBehaviorTicker()
}

// Document returns the API attached to document id.
func (c *Context) Document(id string) (*DocumentAPI, bool) {
	if c.host == nil {
		return nil, false
	}
	reg := c.host.Registry()
	if reg == nil {
		return nil, false
	}
	doc, ok := reg.Document(id)
	if !ok {
		return nil, false
	}
	if ext, ok := doc.(extensible); ok {
		if api, ok := ext.Extension().(*DocumentAPI); ok && api.ctx == c {
			return api, true
		}
	}
	return &DocumentAPI{ctx: c, docID: id}, true
}

func (c *Context) attachDocument(id string) {
	reg := c.host.Registry()
	if reg == nil {
		return
	}
	doc, ok := reg.Document(id)
	if !ok {
		return
	}
	if ext, ok := doc.(extensible); ok {
		ext.SetExtension(&DocumentAPI{ctx: c, docID: id})
	}
	c.log.Debug().Str("document", id).Msg("window.Context document attached")
}
