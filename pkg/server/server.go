package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lstore/lstore/pkg/concurrent"
	"github.com/lstore/lstore/pkg/database"
)

// Server is the thin HTTP query façade described in spec.md §6: it
// routes insert/select/update/delete/sum/sum_version/increment to the
// owning Table, plus table create/list/drop, index creation and /stats,
// wrapping every outcome as a JSON ok/result (or
// ok/error) body rather than ever surfacing a Go error to the wire.
type Server struct {
	config  *Config
	db      *database.Database
	router  *chi.Mux
	httpSrv *http.Server

	requests *concurrent.Counter
}

// New opens the database at config.DataDir and wires the façade routes.
func New(config *Config) (*Server, error) {
	dbConfig := &database.Config{
		DataDir:               config.DataDir,
		RecordsPerPage:        config.RecordsPerPage,
		BufferPoolSize:        config.BufferPoolSize,
		TailRIDStart:          database.DefaultTailRIDStart,
		EnableBackgroundMerge: config.EnableBackgroundMerge,
		MergeTailThreshold:    config.MergeTailThreshold,
		FlushOnClose:          config.FlushOnClose,
	}
	db, err := database.Open(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	srv := &Server{
		config:   config,
		db:       db,
		router:   chi.NewRouter(),
		requests: concurrent.NewCounter(),
	}
	srv.setupMiddleware()
	srv.setupRoutes()

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	srv.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      srv.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return srv, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}
	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}
	s.router.Use(middleware.Timeout(30 * time.Second))
	s.router.Use(s.countRequest)
}

// countRequest tallies every request that reaches it, independent of how
// it was handled; Stats reports the running total. With CORS enabled,
// OPTIONS preflight requests are answered by corsMiddleware first and are
// not counted.
func (s *Server) countRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.requests.Inc()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setupRoutes() {
	h := newHandlers(s.db)

	s.router.Route("/tables", func(r chi.Router) {
		r.Post("/", h.CreateTable)
		r.Get("/", h.ListTables)
		r.Route("/{table}", func(r chi.Router) {
			r.Delete("/", h.DropTable)
			r.Post("/insert", h.Insert)
			r.Post("/select", h.Select)
			r.Post("/select_version", h.SelectVersion)
			r.Post("/update", h.Update)
			r.Post("/delete", h.Delete)
			r.Post("/sum", h.Sum)
			r.Post("/sum_version", h.SumVersion)
			r.Post("/increment", h.Increment)
			r.Post("/index", h.CreateIndex)
		})
	})

	s.router.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		h.Stats(w, r, s.requests.Load())
	})
}

// Start listens on config.Host:Port until an interrupt/TERM signal or a
// listener error, then shuts down gracefully.
func (s *Server) Start() error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		return s.Shutdown()
	}
}

// Shutdown stops accepting new connections, drains in-flight requests up
// to 10 seconds, and closes the underlying database.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return s.db.Close()
}

// Database returns the façade's underlying database, mainly for tests.
func (s *Server) Database() *database.Database {
	return s.db
}
