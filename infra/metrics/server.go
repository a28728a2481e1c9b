package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kilianp07/smartcharge/infra/logger"
)

// DefaultListenAddr is used when metrics.listen_addr is empty.
const DefaultListenAddr = ":9100"

// NewMux returns the handler serving /metrics plus any extra routes such as
// /api/status. A dedicated ServeMux is used to avoid interfering with other
// handlers.
func NewMux(routes map[string]http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for pattern, h := range routes {
		mux.Handle(pattern, h)
	}
	return mux
}

// StartServer serves NewMux(routes) on addr until ctx is canceled.
func StartServer(ctx context.Context, addr string, routes map[string]http.Handler) error {
	if addr == "" {
		addr = DefaultListenAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, NewMux(routes))
}

// Serve runs the HTTP server on an existing listener until ctx is canceled.
func Serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	log := logger.New("metrics-server")
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("metrics server shutdown: %v", err)
		}
		cancel()
	}()
	log.Infof("serving metrics on %s", ln.Addr())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
