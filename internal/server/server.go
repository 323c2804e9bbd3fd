// Package server exposes one window context over an admin HTTP API.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/globalbehavior/internal/auth"
	"github.com/danmuck/globalbehavior/internal/observability"
	"github.com/danmuck/globalbehavior/internal/window"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Options struct {
	CorsOrigins []string
	// Token guards mutating routes when non-empty.
	Token string
}

type Admin struct {
	ID       string
	Appeared time.Time

	win       *window.Context
	router    *gin.Engine
	validator auth.Validator
	log       zerolog.Logger
}

func New(id string, win *window.Context, opts Options) *Admin {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)
	logger := log.With().Str("component", "server").Str("node", id).Logger()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(logger, "/health", "/ready", "/metrics"))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(opts.CorsOrigins),
		AllowMethods: []string{"GET", "POST", "DELETE"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", SenderOriginHeader},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	a := &Admin{
		ID:       id,
		Appeared: time.Now(),
		win:      win,
		router:   r,
		log:      logger,
	}
	if opts.Token != "" {
		a.validator = auth.StaticToken{Token: opts.Token}
	}
	a.RegisterRoutes()
	return a
}

func (a *Admin) NodeID() string {
	return a.ID
}

func (a *Admin) Kind() string {
	return "window"
}

func (a *Admin) HTTPRouter() *gin.Engine {
	return a.router
}

// Serve runs the admin API on ln until ctx is done.
func (a *Admin) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info().Str("addr", ln.Addr().String()).Msg("server.Admin listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
