// Package server serves the token page: a JSON API over the binding layer,
// a websocket stream of snapshots and the embedded browser page.
package server

import (
	"context"
	"embed"
	"errors"
	"net/http"
	"time"

	"github.com/Mohsinsiddi/tkn/internal/binding"
	"github.com/Mohsinsiddi/tkn/internal/erc20"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

//go:embed static
var staticFiles embed.FS

// EventSource lists past token events for /api/events.
type EventSource interface {
	Events(ctx context.Context, kind erc20.EventKind) ([]erc20.Event, error)
}

// EventSourceFunc adapts a function to EventSource.
type EventSourceFunc func(ctx context.Context, kind erc20.EventKind) ([]erc20.Event, error)

func (f EventSourceFunc) Events(ctx context.Context, kind erc20.EventKind) ([]erc20.Event, error) {
	return f(ctx, kind)
}

// Config configures a Server.
type Config struct {
	Addr    string
	Network string // shown on the page
	Events  EventSource
	Logger  *logrus.Logger
}

// Server is the HTTP front end of a binding.Store.
type Server struct {
	store    *binding.Store
	cfg      Config
	log      *logrus.Logger
	engine   *gin.Engine
	upgrader websocket.Upgrader
}

// New builds the gin engine and routes. The store must be started by the
// caller.
func New(store *binding.Store, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	s := &Server{
		store: store,
		cfg:   cfg,
		log:   cfg.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	gin.DefaultWriter = s.log.Writer()
	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(ginLogger(s.log))
	s.engine.Use(gin.Recovery())
	s.engine.Use(ginCors())
	s.routes()
	return s
}

// Handler exposes the engine, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) routes() {
	api := s.engine.Group("/api")
	api.GET("/token", s.handleToken)
	api.GET("/balances/:address", s.handleBalance)
	api.GET("/allowance/:owner/:spender", s.handleAllowance)
	api.GET("/events", s.handleEvents)
	api.POST("/transfer", s.handleTransfer)
	api.POST("/approve", s.handleApprove)
	api.POST("/transferFrom", s.handleTransferFrom)

	s.engine.GET("/ws", s.handleWebsocket)

	s.engine.GET("/", func(c *gin.Context) {
		page, err := staticFiles.ReadFile("static/index.html")
		if err != nil {
			apiError(c, http.StatusInternalServerError, err)
			return
		}
		c.Data(http.StatusOK, "text/html; charset=utf-8", page)
	})
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("serving token page")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func ginLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  c.Writer.Status(),
			"latency": time.Since(start).Round(time.Microsecond),
		})
		if len(c.Errors) > 0 {
			entry.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}
		entry.Debug("request")
	}
}

func ginCors() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Header.Get("Origin") != "" {
			c.Header("Access-Control-Allow-Origin", "*")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		}
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
