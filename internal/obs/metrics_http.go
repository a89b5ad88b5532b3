package obs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// HealthCheck reports nil when the named dependency is usable.
type HealthCheck func(ctx context.Context) error

func BootstrapMetricsServer(addr string, checks map[string]HealthCheck, l *zap.Logger) *http.Server {
	ms := createMetricsServer(addr, checks)

	go func() {
		l.Info("metrics listening", zap.String("addr", addr))
		if err := ms.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Error("metrics server error", zap.Error(err))
		}
	}()

	return ms
}

func createMetricsServer(addr string, checks map[string]HealthCheck) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", healthHandler(checks))
	return &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
}

// healthHandler runs every check and writes one "name: ok|error" line per check,
// answering 503 if any of them failed.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		defer cancel()

		var (
			sb     strings.Builder
			failed bool
		)
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				failed = true
				fmt.Fprintf(&sb, "%s: %v\n", name, err)
				continue
			}
			fmt.Fprintf(&sb, "%s: ok\n", name)
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if failed {
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_, _ = w.Write([]byte(sb.String()))
	}
}
