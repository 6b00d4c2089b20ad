package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"
)

// Server exposes /metrics and /healthz while a batch runs.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewMux(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	return mux
}

// Serve starts listening on bind and returns once the listener is open.
func Serve(bind string, metrics http.Handler, logger *slog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}
	s := &Server{
		srv: &http.Server{
			Handler:           NewMux(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger.With(slog.String("component", "metrics")),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server failed", slog.String("error", err.Error()))
		}
	}()
	s.logger.Info("metrics server started", slog.String("addr", ln.Addr().String()))
	return s, nil
}

func (s *Server) Addr() string { return s.ln.Addr().String() }

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	s.wg.Wait()
	return err
}
