package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/danmuck/globalbehavior/internal/auth"
	"github.com/danmuck/globalbehavior/internal/config"
	"github.com/danmuck/globalbehavior/internal/protocol/wire"
	"github.com/danmuck/globalbehavior/internal/transport"
	"github.com/danmuck/globalbehavior/internal/window"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const maxMessageBytes = 64 * 1024

// SenderOriginHeader carries the origin of an injected relay message. It is
// separate from Origin, which belongs to CORS.
const SenderOriginHeader = "X-Sender-Origin"

// TickerRequest is the body of POST /tickers/:name. Exactly one of Seconds and
// FPS must be set. A present but empty Pattern never fires.
type TickerRequest struct {
	Seconds   float64 `json:"seconds,omitempty"`
	FPS       float64 `json:"fps,omitempty"`
	Pattern   []bool  `json:"pattern"`
	OmitFirst bool    `json:"omit_first,omitempty"`
	Countdown int     `json:"countdown,omitempty"`
}

type originRequest struct {
	Origin string `json:"origin"`
}

func (a *Admin) RegisterRoutes() {
	r := a.router
	guard := auth.Require(a.validator)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(a.Appeared).String(),
			"service": a.ID,
			"version": window.Version,
		})
	})

	r.GET("/ready", func(c *gin.Context) {
		snap := a.win.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"ready":      true,
			"context":    snap.ID,
			"has_parent": snap.HasParent,
			"children":   len(snap.Children),
		})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/snapshot", func(c *gin.Context) {
		c.JSON(http.StatusOK, a.win.Snapshot())
	})

	r.GET("/documents", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"documents": a.win.Snapshot().Documents})
	})

	r.POST("/behaviors/:name/trigger", guard, func(c *gin.Context) {
		name := c.Param("name")
		a.win.TriggerCustomBehaviorNamed(name)
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "behavior": name})
	})

	r.GET("/origins", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"allowed_origins": a.win.Snapshot().AllowedOrigins})
	})

	r.POST("/origins", guard, func(c *gin.Context) {
		var req originRequest
		if err := c.ShouldBindJSON(&req); err != nil || req.Origin == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "origin is required"})
			return
		}
		a.win.AllowPostMessageFrom(req.Origin)
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "origin": req.Origin})
	})

	r.GET("/tickers", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"tickers": a.win.Tickers().List()})
	})

	r.POST("/tickers/:name", guard, func(c *gin.Context) {
		var req TickerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tc := config.TickerConfig{
			Name:      c.Param("name"),
			Seconds:   req.Seconds,
			FPS:       req.FPS,
			Pattern:   req.Pattern,
			OmitFirst: req.OmitFirst,
			Countdown: req.Countdown,
		}
		if err := config.ValidateTicker(tc); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a.win.StartCustomBehaviorTicker(tc.Name, tc.Interval(), tc.Options())
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "ticker": tc.Name, "interval": tc.Interval().String()})
	})

	r.DELETE("/tickers/:name", guard, func(c *gin.Context) {
		name := c.Param("name")
		a.win.StopCustomBehaviorTicker(name)
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "ticker": name})
	})

	r.DELETE("/tickers", guard, func(c *gin.Context) {
		a.win.StopAllCustomBehaviorTicker()
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})

	// POST /messages injects a relay message as if a neighbouring context had
	// posted it. SenderOriginHeader is the sender origin.
	r.POST("/messages", guard, func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxMessageBytes+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(body) > maxMessageBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "message too large"})
			return
		}
		if !json.Valid(body) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body is not json"})
			return
		}
		a.win.Adapter().Deliver(transport.Inbound{
			Origin:  c.GetHeader(SenderOriginHeader),
			Payload: wire.JSONPayload(body),
		})
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	})
}
