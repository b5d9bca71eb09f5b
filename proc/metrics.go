package proc

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/leeineian/jukebox/music"
	"github.com/leeineian/jukebox/sys"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newMetricsRegistry holds the engine collectors plus the Go runtime and
// process collectors.
func newMetricsRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	music.RegisterMetrics(reg)
	return reg
}

// registerMetricsDaemon serves /metrics on addr. It is disabled when addr is
// empty.
func registerMetricsDaemon(addr string, reg *prometheus.Registry) {
	sys.RegisterDaemon(sys.LogMetrics, func(ctx context.Context) (bool, func(), func()) {
		if addr == "" {
			return false, nil, nil
		}
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		run := func() {
			sys.LogMetrics(sys.MsgMetricsListening, addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				sys.LogMetrics(sys.MsgMetricsServeFail, err)
			}
		}
		shutdown := func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}
		return true, run, shutdown
	})
}
