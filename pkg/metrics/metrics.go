// Package metrics exposes recorder counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "armrec"

// Iteration results.
const (
	ResultOK         = "ok"
	ResultNoData     = "no_data"
	ResultSendError  = "send_error"
	ResultParseError = "parse_error"
	ResultSafeZone   = "safe_zone"
)

// Frame and snapshot results.
const (
	ResultSaved        = "saved"
	ResultCaptureError = "capture_error"
	ResultSaveError    = "save_error"
	ResultWritten      = "written"
	ResultFailed       = "failed"
)

// Metrics holds the recorder collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	// Iterations counts control loop iterations by result.
	Iterations *prometheus.CounterVec
	// ExchangeAttempts observes polls needed per successful exchange.
	ExchangeAttempts prometheus.Histogram
	// DriveErrors counts failed follower drive commands.
	DriveErrors prometheus.Counter
	// Frames counts capture loop iterations by result.
	Frames *prometheus.CounterVec
	// Snapshots counts drained snapshot files by result.
	Snapshots *prometheus.CounterVec
	// Buffered is the number of records in the capture buffer.
	Buffered prometheus.Gauge
}

// New creates the collectors and registers them with a new registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_iterations_total",
			Help:      "Control loop iterations by result.",
		}, []string{"result"}),
		ExchangeAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "exchange_attempts",
			Help:      "Polls needed before both arms answered.",
			Buckets:   prometheus.LinearBuckets(1, 1, 5),
		}),
		DriveErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drive_errors_total",
			Help:      "Follower drive commands that failed to send.",
		}),
		Frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "camera_frames_total",
			Help:      "Camera loop iterations by result.",
		}, []string{"result"}),
		Snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot files written at shutdown by result.",
		}, []string{"result"}),
		Buffered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buffered_records",
			Help:      "Records held in the capture buffer.",
		}),
	}
	m.Registry.MustRegister(
		m.Iterations, m.ExchangeAttempts, m.DriveErrors,
		m.Frames, m.Snapshots, m.Buffered,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
