package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hints/internal/wire"
)

// daemonMetrics collects execution counters exposed on /metrics.
type daemonMetrics struct {
	requestsTotal *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	writeSeconds  prometheus.Histogram
}

func newDaemonMetrics(reg *prometheus.Registry) *daemonMetrics {
	m := &daemonMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hintsd_requests_total",
				Help: "Pointer command requests executed, by request type and outcome",
			},
			[]string{"type", "outcome"},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "hintsd_queue_depth",
				Help: "Requests waiting in the execution queue",
			},
		),
		writeSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hintsd_device_write_seconds",
				Help:    "Wall time spent executing one request against the injection devices",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
	}
	reg.MustRegister(m.requestsTotal, m.queueDepth, m.writeSeconds)
	return m
}

func (m *daemonMetrics) observe(req wire.Request, resp wire.Response, d time.Duration) {
	var reqType string
	switch req.(type) {
	case wire.Click:
		reqType = "click"
	case wire.Move:
		reqType = "move"
	case wire.Scroll:
		reqType = "scroll"
	default:
		reqType = "unknown"
	}
	outcome := "ok"
	if !resp.Ok() {
		outcome = resp.Kind.String()
	}
	m.requestsTotal.WithLabelValues(reqType, outcome).Inc()
	m.writeSeconds.Observe(d.Seconds())
}

// healthStatus is the /healthz payload.
type healthStatus struct {
	Status     string `json:"status"`
	QueueDepth int    `json:"queue_depth"`
	Device     string `json:"device"`
}

// runStatusServer serves /healthz and /metrics on the given port and shuts
// down gracefully when ctx is canceled.
//
// This replaces http.ListenAndServe so we can call Server.Shutdown during
// program shutdown.
func runStatusServer(ctx context.Context, port int, reg *prometheus.Registry, health func() healthStatus, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		hs := health()
		hs.Status = "ok"
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hs); err != nil {
			logger.Debug("write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	logger.Info("status server listening", "port", port)

	errCh := make(chan error, 1)

	go func() {
		// ListenAndServe returns http.ErrServerClosed on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("status server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("status server shutdown: %w", err)
		}
		<-errCh
		return nil

	case err := <-errCh:
		return err
	}
}
