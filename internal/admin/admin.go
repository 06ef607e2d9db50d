// Package admin - HTTP listener для наблюдения за сервером:
// метрики Prometheus, проверка состояния и доступ к хранилищу.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RecordStore - операции хранилища, доступные через HTTP.
type RecordStore interface {
	Snapshot() []string
	Count() int
	Clear() int
}

// ServerStatus - состояние TCP сервера для /healthz.
type ServerStatus interface {
	IsRunning() bool
	GetConnectionCount() int64
	GetAddress() string
}

// Server - HTTP сервер администрирования.
type Server struct {
	addr     string
	router   chi.Router
	http     *http.Server
	listener net.Listener
	logger   *slog.Logger
}

// New собирает роутер. gatherer используется для /metrics.
func New(addr string, store RecordStore, status ServerStatus, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		addr:   addr,
		router: NewRouter(store, status, gatherer),
		logger: logger,
	}
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// NewRouter возвращает chi роутер с маршрутами администрирования.
func NewRouter(store RecordStore, status ServerStatus, gatherer prometheus.Gatherer) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		running := status.IsRunning()
		code := http.StatusOK
		if !running {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]any{
			"running":            running,
			"active_connections": status.GetConnectionCount(),
			"address":            status.GetAddress(),
			"records":            store.Count(),
		})
	})

	r.Route("/records", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			records := store.Snapshot()
			writeJSON(w, http.StatusOK, map[string]any{
				"count":   len(records),
				"records": records,
			})
		})
		r.Get("/count", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]int{"count": store.Count()})
		})
		r.Delete("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]int{"removed": store.Clear()})
		})
	})

	return r
}

// Start открывает listener и обслуживает запросы в отдельной горутине.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("Admin HTTP server started", "address", ln.Addr().String())

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Admin HTTP server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown останавливает HTTP сервер, дожидаясь активных запросов.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Addr возвращает фактический адрес после Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
