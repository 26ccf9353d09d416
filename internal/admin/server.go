// Package admin serves a small local HTTP surface next to a running client:
// health, prometheus metrics, and the current session snapshot.
package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/minechat/internal/auth"
	"github.com/danmuck/minechat/internal/logging"
	"github.com/danmuck/minechat/internal/observability"
	"github.com/danmuck/minechat/internal/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const Version = "0.1.0"

// InfoSource is the read side of a session.
type InfoSource interface {
	Info() session.Info
}

type Server struct {
	addr     string
	router   *gin.Engine
	source   InfoSource
	guard    auth.Validator
	appeared time.Time
}

func New(addr string, corsOrigins []string, source InfoSource) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(observability.ComponentLogger("admin")))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		addr:     addr,
		router:   r,
		source:   source,
		appeared: time.Now(),
	}
	s.registerRoutes()
	return s
}

// RequireToken makes /session demand a bearer token accepted by v. Call it
// before Run.
func (s *Server) RequireToken(v auth.Validator) *Server {
	s.guard = v
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.appeared).Round(time.Second).String(),
			"service": "minechat",
			"version": Version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/session", s.authorize, func(c *gin.Context) {
		if s.source == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no session"})
			return
		}
		c.JSON(http.StatusOK, s.source.Info())
	})
}

func (s *Server) authorize(c *gin.Context) {
	if s.guard == nil {
		return
	}
	if err := auth.Authorize(s.guard, c.GetHeader("Authorization")); err != nil {
		logging.Warnf("admin.authorize denied path=%s remote=%s", c.FullPath(), c.ClientIP())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logging.Infof("admin.Run listen addr=%q", s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logging.Infof("admin.Run shutdown addr=%q", s.addr)
		return nil
	}
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		out = append(out, origin)
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}
