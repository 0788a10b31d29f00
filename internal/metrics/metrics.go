package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/saviobatista/sbs2cot/internal/health"
)

var (
	LinesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbs2cot_lines_total",
		Help: "SBS lines read from the upstream feed",
	}, []string{"result"})
	TransmissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbs2cot_records_total",
		Help: "parsed SBS records by MSG transmission type",
	}, []string{"type"})
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbs2cot_events_total",
		Help: "CoT events by outcome",
	}, []string{"result"})
	MirrorTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sbs2cot_mirror_publish_total",
		Help: "CoT events mirrored to NATS",
	}, []string{"result"})
	ConnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sbs2cot_upstream_connects_total",
		Help: "successful connections to the SBS feed",
	})
	DialFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sbs2cot_upstream_dial_failures_total",
		Help: "failed connection attempts to the SBS feed",
	})
	UpstreamConnected = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sbs2cot_upstream_connected",
		Help: "1 while streaming from the SBS feed",
	})
)

func init() {
	prometheus.MustRegister(LinesTotal, TransmissionsTotal, EventsTotal, MirrorTotal, ConnectsTotal, DialFailuresTotal, UpstreamConnected)
}

// NewMux returns a mux serving /metrics and the health endpoints
func NewMux(healthHandler *health.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if healthHandler != nil {
		mux.HandleFunc("/health", healthHandler.HealthHandler)
		mux.HandleFunc("/ready", healthHandler.ReadinessHandler)
		mux.HandleFunc("/live", healthHandler.LivenessHandler)
	}
	return mux
}

// ServeWithHealth serves metrics and health on addr until ctx is done
func ServeWithHealth(ctx context.Context, addr string, healthHandler *health.Handler, log *zap.SugaredLogger) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(healthHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Infow("metrics server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warnw("metrics server stopped", "err", err)
	}
}
