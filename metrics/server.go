package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsServer serves /metrics on a dedicated listener.
type MetricsServer struct {
	srv *http.Server
}

// New creates a metrics server. service is exposed as a constant build info label.
func New(service, addr string) (*MetricsServer, error) {
	buildInfo.WithLabelValues(service).Set(1)

	mux := chi.NewRouter()
	mux.Handle("/metrics", promhttp.Handler())

	return &MetricsServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler returns the router, for tests and embedding.
func (s *MetricsServer) Handler() http.Handler {
	return s.srv.Handler
}
