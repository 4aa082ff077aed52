package bridge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/qtmctl/internal/observability"
)

const shutdownGrace = 5 * time.Second

// Server is the read-only HTTP face of the bridge.
type Server struct {
	Name    string
	Addr    string
	Started time.Time

	tracker *Tracker
	ready   func() bool
	router  *gin.Engine
}

func NewServer(name, addr string, corsOrigins []string, tracker *Tracker, ready func() bool) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(name))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		Name:    name,
		Addr:    addr,
		Started: time.Now(),
		tracker: tracker,
		ready:   ready,
		router:  r,
	}
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) RegisterRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"bridge":  s.Name,
			"version": "0.0.1",
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		ready := s.ready == nil || s.ready()
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   ready,
			"uptime":  time.Since(s.Started).String(),
			"bridge":  s.Name,
			"version": "0.0.1",
		})
	})

	s.router.GET("/frame", func(c *gin.Context) {
		snap, ok := s.tracker.Latest()
		if !ok {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no frame received yet"})
			return
		}
		c.JSON(http.StatusOK, snap)
	})

	s.router.GET("/bodies", func(c *gin.Context) {
		resp := gin.H{
			"names":  s.tracker.BodyNames(),
			"bodies": []BodyState{},
		}
		if snap, ok := s.tracker.Latest(); ok {
			resp["bodies"] = snap.Bodies
			resp["frame_number"] = snap.FrameNumber
		}
		c.JSON(http.StatusOK, resp)
	})

	s.router.GET("/bodies/:body", func(c *gin.Context) {
		state, err := s.tracker.Body(c.Param("body"))
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrBodyNotFound) {
				status = http.StatusNotFound
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, state)
	})
}

// Run serves until ctx ends, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	s.RegisterRoutes()
	srv := &http.Server{Addr: s.Addr, Handler: s.router}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
