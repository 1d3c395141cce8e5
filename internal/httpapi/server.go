// Package httpapi exposes the tea-jar client over HTTP: status, memo list,
// tip and withdraw actions, the controller event log and a websocket feed of
// new memos.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/controller"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/events"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/metrics"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/internal/middleware"
	"github.com/shuuuuting/buy-me-a-coffee-dapp/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// Config holds server dependencies. Controller is required.
type Config struct {
	Addr        string
	Controller  *controller.Controller
	Events      *events.RingBuffer
	Metrics     *metrics.Collector
	Limiter     *middleware.RateLimiter
	CORSOrigins []string
	Logger      *logger.Logger
}

// Server serves the HTTP API.
type Server struct {
	cfg     Config
	ctrl    *controller.Controller
	log     *logger.Logger
	handler http.Handler
	feed    *feedHub
	cors    *middleware.CORS
}

// New builds the server and its routes.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewDefault("httpapi")
	}
	if cfg.Events == nil {
		cfg.Events = events.NewRingBuffer(0)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewCollector("")
	}
	s := &Server{
		cfg:  cfg,
		ctrl: cfg.Controller,
		log:  cfg.Logger,
	}
	s.cors = middleware.NewCORS(cfg.CORSOrigins)
	s.feed = newFeedHub(cfg.Controller.Store(), s.cors, cfg.Logger)
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging(s.log, s.cfg.Metrics))

	r.Handle("/metrics", s.cfg.Metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/memos", s.memos).Methods(http.MethodGet)
	api.HandleFunc("/events", s.events).Methods(http.MethodGet)
	api.HandleFunc("/feed", s.feed.serve).Methods(http.MethodGet)

	actions := api.Methods(http.MethodPost).Subrouter()
	actions.Use(s.cors.RequireOrigin)
	if s.cfg.Limiter != nil {
		actions.Use(s.cfg.Limiter.Handler)
	}
	actions.HandleFunc("/connect", s.connect)
	actions.HandleFunc("/disconnect", s.disconnect)
	actions.HandleFunc("/tips", s.tip)
	actions.HandleFunc("/withdraw", s.withdraw)
	actions.HandleFunc("/resync", s.resync)

	return s.cors.Handler(r)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on cfg.Addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", s.cfg.Addr).Info("http api listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.feed.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
