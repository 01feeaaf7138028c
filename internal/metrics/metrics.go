package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus metric the running engine exposes.
type Metrics struct {
	ScriptsCompiledTotal   prometheus.Counter
	CompileErrorsTotal     prometheus.Counter
	CompileDur             prometheus.Histogram
	BarsProcessedTotal     prometheus.Counter
	BarProcessDur          prometheus.Histogram
	StateSlotsInUse        *prometheus.GaugeVec // labels: script_id
	PlotPointsEmittedTotal prometheus.Counter
	IndicatorCallsTotal    *prometheus.CounterVec // labels: kind (sma, ema, rsi, ...)
	PlotSeriesGauge        *prometheus.GaugeVec   // labels: title; value is the series' last value

	EventBusPublishDur    prometheus.Histogram
	EventBusPublishErrors prometheus.Counter
	EventBusCircuitState  prometheus.Gauge // 0=closed, 1=open, 2=half-open

	SQLiteCommitDur prometheus.Histogram

	StrategyTradesTotal        *prometheus.CounterVec // labels: direction
	StrategyOpenPositionsGauge prometheus.Gauge

	AdminAuthFailuresTotal prometheus.Counter
	WSConnectionsGauge     prometheus.Gauge
}

// NewMetrics registers and returns every metric.
func NewMetrics() *Metrics {
	m := &Metrics{
		ScriptsCompiledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barlang_scripts_compiled_total",
			Help: "Total scripts successfully compiled",
		}),
		CompileErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barlang_compile_errors_total",
			Help: "Total compile attempts that failed in lex, parse, or lower",
		}),
		CompileDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "barlang_compile_duration_seconds",
			Help:    "Time to lex, parse, and lower one script",
			Buckets: prometheus.DefBuckets,
		}),
		BarsProcessedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barlang_bars_processed_total",
			Help: "Total bars fed through any running script",
		}),
		BarProcessDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "barlang_bar_process_duration_seconds",
			Help:    "Time to execute one script body for one bar",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01},
		}),
		StateSlotsInUse: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "barlang_state_slots_in_use",
			Help: "Number of persistent-state slots a running script currently holds",
		}, []string{"script_id"}),
		PlotPointsEmittedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barlang_plot_points_emitted_total",
			Help: "Total plot() registrations across all scripts",
		}),
		IndicatorCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barlang_indicator_calls_total",
			Help: "Total calls to each stateful indicator built-in",
		}, []string{"kind"}),
		PlotSeriesGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "barlang_plot_series_value",
			Help: "Last value written to a named plot series",
		}, []string{"title"}),

		EventBusPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "barlang_eventbus_publish_duration_seconds",
			Help:    "Redis PUBLISH latency for bar/trade events",
			Buckets: prometheus.DefBuckets,
		}),
		EventBusPublishErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barlang_eventbus_publish_errors_total",
			Help: "Event bus publish failures",
		}),
		EventBusCircuitState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barlang_eventbus_circuit_state",
			Help: "Event bus circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "barlang_sqlite_commit_duration_seconds",
			Help:    "SQLite write latency for script/trade persistence",
			Buckets: prometheus.DefBuckets,
		}),

		StrategyTradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "barlang_strategy_trades_total",
			Help: "Total closed trades across all running scripts",
		}, []string{"direction"}),
		StrategyOpenPositionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barlang_strategy_open_positions",
			Help: "Current count of open positions across all running scripts",
		}),

		AdminAuthFailuresTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "barlang_admin_auth_failures_total",
			Help: "Rejected admin TOTP codes",
		}),
		WSConnectionsGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "barlang_ws_connections",
			Help: "Current WebSocket client connections",
		}),
	}

	prometheus.MustRegister(
		m.ScriptsCompiledTotal,
		m.CompileErrorsTotal,
		m.CompileDur,
		m.BarsProcessedTotal,
		m.BarProcessDur,
		m.StateSlotsInUse,
		m.PlotPointsEmittedTotal,
		m.IndicatorCallsTotal,
		m.PlotSeriesGauge,
		m.EventBusPublishDur,
		m.EventBusPublishErrors,
		m.EventBusCircuitState,
		m.SQLiteCommitDur,
		m.StrategyTradesTotal,
		m.StrategyOpenPositionsGauge,
		m.AdminAuthFailuresTotal,
		m.WSConnectionsGauge,
	)

	return m
}

// ObserveCompile satisfies internal/engine.Recorder.
func (m *Metrics) ObserveCompile(d time.Duration, ok bool) {
	m.CompileDur.Observe(d.Seconds())
	if ok {
		m.ScriptsCompiledTotal.Inc()
	} else {
		m.CompileErrorsTotal.Inc()
	}
}

// ObserveBar satisfies internal/engine.Recorder.
func (m *Metrics) ObserveBar(d time.Duration) {
	m.BarsProcessedTotal.Inc()
	m.BarProcessDur.Observe(d.Seconds())
}

// SetStateSlots satisfies internal/engine.Recorder.
func (m *Metrics) SetStateSlots(scriptID string, n int) {
	m.StateSlotsInUse.WithLabelValues(scriptID).Set(float64(n))
}

// ObserveIndicatorCall satisfies internal/engine.Recorder and
// internal/runtime.Instrumentation.
func (m *Metrics) ObserveIndicatorCall(kind string) {
	m.IndicatorCallsTotal.WithLabelValues(kind).Inc()
}

// SetPlotValue satisfies internal/engine.Recorder and
// internal/runtime.Instrumentation.
func (m *Metrics) SetPlotValue(title string, v float64) {
	m.PlotPointsEmittedTotal.Inc()
	m.PlotSeriesGauge.WithLabelValues(title).Set(v)
}

// HealthStatus tracks liveness of the engine's external dependencies.
type HealthStatus struct {
	mu sync.RWMutex

	EventBusConnected bool      `json:"eventbus_connected"`
	SQLiteOK          bool      `json:"sqlite_ok"`
	ScriptsLoaded     int       `json:"scripts_loaded"`
	EventBusLatencyMs float64   `json:"eventbus_latency_ms"`
	SQLiteLatencyMs   float64   `json:"sqlite_latency_ms"`
	LastCheckAt       time.Time `json:"last_check_at"`
	StartedAt         time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{StartedAt: time.Now()}
}

func (h *HealthStatus) SetScriptsLoaded(n int) {
	h.mu.Lock()
	h.ScriptsLoaded = n
	h.mu.Unlock()
}

// CheckEventBus pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckEventBus(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.EventBusConnected = err == nil
	h.EventBusLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks in the background.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckEventBus(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.EventBusConnected || !h.SQLiteOK {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.EventBusConnected && !h.SQLiteOK {
		overallStatus = "unhealthy"
	}

	status := struct {
		Status            string  `json:"status"`
		Uptime            string  `json:"uptime"`
		EventBusConnected bool    `json:"eventbus_connected"`
		EventBusLatencyMs float64 `json:"eventbus_latency_ms"`
		SQLiteOK          bool    `json:"sqlite_ok"`
		SQLiteLatencyMs   float64 `json:"sqlite_latency_ms"`
		ScriptsLoaded     int     `json:"scripts_loaded"`
		LastCheckAt       string  `json:"last_check_at"`
	}{
		Status:            overallStatus,
		Uptime:            time.Since(h.StartedAt).Round(time.Second).String(),
		EventBusConnected: h.EventBusConnected,
		EventBusLatencyMs: h.EventBusLatencyMs,
		SQLiteOK:          h.SQLiteOK,
		SQLiteLatencyMs:   h.SQLiteLatencyMs,
		ScriptsLoaded:     h.ScriptsLoaded,
		LastCheckAt:       h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv:    &http.Server{Addr: addr, Handler: mux},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
