// Package server wires together the storage engine, protocol handler,
// and connection I/O into a running shardcached process: the text
// protocol listener plus an admin HTTP surface for health, metrics, and
// stats.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shardcached/shardcached/internal/connio"
	"github.com/shardcached/shardcached/internal/handler"
	"github.com/shardcached/shardcached/internal/stats"
	"github.com/shardcached/shardcached/internal/store"
)

func writeJSON(w http.ResponseWriter, v any) {
	_ = json.NewEncoder(w).Encode(v)
}

// Config bundles every knob Server needs to start the protocol listener
// and the admin HTTP surface.
type Config struct {
	ListenAddr  string
	AdminAddr   string
	IdleTimeout time.Duration

	Engine     *store.Engine
	HandlerCfg handler.Config
	Stats      *stats.Stats
	Log        *slog.Logger
}

// Server owns the two listeners shardcached exposes: the memcached
// text protocol port and the admin HTTP port.
type Server struct {
	cfg Config
	log *slog.Logger

	textLn   net.Listener
	adminSrv *http.Server

	connWG       sync.WaitGroup
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	connsMu sync.Mutex
	conns   map[*connio.Conn]struct{}
}

// New builds a Server; call Run to start serving.
func New(cfg Config) *Server {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		cfg:        cfg,
		log:        log,
		shutdownCh: make(chan struct{}),
		conns:      make(map[*connio.Conn]struct{}),
	}
	s.adminSrv = &http.Server{
		Addr:    cfg.AdminAddr,
		Handler: s.adminRouter(),
	}
	return s
}

func (s *Server) adminRouter() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		writeJSON(w, s.cfg.Stats.Snapshot())
	})
	return r
}

// Run starts both listeners and blocks until ctx is cancelled or a
// client issues "shutdown", then shuts both down gracefully and returns
// any errors encountered,
// aggregated with go-multierror.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.cfg.ListenAddr)
	}
	s.textLn = ln
	s.log.Info("text protocol listening", slog.String("addr", s.cfg.ListenAddr))

	errCh := make(chan error, 1)
	go func() { errCh <- s.acceptLoop(ctx) }()

	go func() {
		s.log.Info("admin http listening", slog.String("addr", s.cfg.AdminAddr))
		if err := s.adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("admin http server exited", slog.Any("error", err))
		}
	}()

	select {
	case <-ctx.Done():
	case <-s.shutdownCh:
		s.log.Info("shutdown requested by client command")
	}

	var result *multierror.Error
	if err := s.textLn.Close(); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "close text listener"))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.adminSrv.Shutdown(shutdownCtx); err != nil {
		result = multierror.Append(result, errors.Wrap(err, "shutdown admin server"))
	}

	if err := <-errCh; err != nil {
		result = multierror.Append(result, err)
	}

	s.closeAllConns()
	s.connWG.Wait()
	return result.ErrorOrNil()
}

// closeAllConns force-closes every still-open connection so any
// goroutine blocked in a socket Read unblocks immediately; each
// connection's own Serve loop then runs its normal Abandon/cleanup
// path before returning.
func (s *Server) closeAllConns() {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	for c := range s.conns {
		_ = c.Close()
	}
}

func (s *Server) requestShutdown() {
	s.shutdownOnce.Do(func() { close(s.shutdownCh) })
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		raw, err := s.textLn.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-s.shutdownCh:
				return nil
			default:
				return errors.Wrap(err, "accept")
			}
		}

		s.cfg.Stats.ConnectionOpened()
		s.connWG.Add(1)
		go func() {
			defer s.connWG.Done()
			defer s.cfg.Stats.ConnectionClosed()
			s.serveConn(ctx, raw)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, raw net.Conn) {
	h := handler.New(s.cfg.Engine, s.cfg.HandlerCfg)
	c := connio.New(raw, h, s.cfg.IdleTimeout, s.log)

	s.connsMu.Lock()
	s.conns[c] = struct{}{}
	s.connsMu.Unlock()
	defer func() {
		s.connsMu.Lock()
		delete(s.conns, c)
		s.connsMu.Unlock()
	}()

	err := c.Serve(ctx)
	if errors.Is(err, connio.ErrShutdown) {
		s.requestShutdown()
		return
	}
	if err != nil && !isExpectedCloseErr(err) {
		s.log.Debug("connection closed", slog.Any("error", err))
	}
}

func isExpectedCloseErr(err error) bool {
	return errors.Is(err, context.Canceled)
}
