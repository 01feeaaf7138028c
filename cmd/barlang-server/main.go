// cmd/barlang-server exposes the script engine over HTTP: admins deploy
// scripts and feed bars through REST endpoints, and the /ws endpoint relays
// each script's bar/trade events to subscribed browser clients. It follows
// the teacher's api_gateway shape — a gorilla/websocket upgrader, a mux of
// REST handlers, a Prometheus/healthz metrics server, and signal-driven
// graceful shutdown — retargeted at scripts instead of market-data streams.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"barlang/config"
	"barlang/internal/adminauth"
	"barlang/internal/engine"
	"barlang/internal/eventbus"
	"barlang/internal/logger"
	"barlang/internal/metrics"
	"barlang/internal/runtime"
	"barlang/internal/store/sqlite"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

func main() {
	enrollAccount := flag.String("enroll", "", "generate a fresh admin TOTP secret for the given account name and exit")
	flag.Parse()

	if *enrollAccount != "" {
		secret, key, err := adminauth.Enroll(*enrollAccount)
		if err != nil {
			fmt.Fprintln(os.Stderr, "enroll:", err)
			os.Exit(1)
		}
		fmt.Printf("ADMIN_TOTP_SECRET=%s\n", secret)
		fmt.Printf("scan or enter this URL in an authenticator app: %s\n", key.URL())
		return
	}

	cfg := config.Load()
	log := logger.Init("barlang-server", slog.LevelInfo)

	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus()

	bus, err := eventbus.New(eventbus.Config{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}, m.EventBusCircuitState)
	if err != nil {
		log.Error("eventbus connect", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	store, err := sqlite.New(sqlite.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Error("sqlite open", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	gate := adminauth.New(cfg.AdminTOTPSecret, 1)
	eng := engine.New(bus, m)
	// engMu serializes every call into eng: handlers run on their own
	// goroutines and Engine does no locking of its own.
	var engMu sync.Mutex

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	health.StartLivenessChecker(ctx, bus.Client(), store.DB(), 10*time.Second)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/scripts/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/api/scripts/"):]
		traceCtx := logger.WithScriptID(logger.WithTraceID(r.Context(), logger.GenerateTraceID(id, time.Now())), id)
		switch r.Method {
		case http.MethodPut:
			if !authorized(gate, m, r) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, "bad body", http.StatusBadRequest)
				return
			}
			engMu.Lock()
			compileErr := eng.Compile(id, string(body))
			hash, diagCount, _ := eng.Audit(id)
			engMu.Unlock()
			if compileErr != nil {
				http.Error(w, compileErr.Error(), http.StatusBadRequest)
				return
			}
			if err := store.SaveScript(id, string(body), hash, diagCount); err != nil {
				log.Error("save script", append(logger.LogWithTrace(traceCtx), "error", err)...)
			}
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			if !authorized(gate, m, r) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			engMu.Lock()
			eng.Remove(id)
			engMu.Unlock()
			if err := store.DeleteScript(id); err != nil {
				log.Error("delete script", append(logger.LogWithTrace(traceCtx), "error", err)...)
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/scripts/feed", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ScriptID string      `json:"script_id"`
			Row      runtime.Row `json:"row"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad body", http.StatusBadRequest)
			return
		}
		engMu.Lock()
		err := eng.Feed(r.Context(), req.ScriptID, req.Row)
		engMu.Unlock()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		scriptID := r.URL.Query().Get("script_id")
		if scriptID == "" {
			http.Error(w, "script_id required", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn("ws upgrade failed", "error", err)
			return
		}
		// Relay on the handler's own goroutine: r.Context() is cancelled as
		// soon as the handler returns, which would end a detached relay at once.
		m.WSConnectionsGauge.Inc()
		defer m.WSConnectionsGauge.Dec()
		relayScriptEvents(r.Context(), log, bus, conn, scriptID)
	})

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux}
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

func authorized(gate *adminauth.Gate, m *metrics.Metrics, r *http.Request) bool {
	code := r.Header.Get("X-Admin-TOTP")
	ok, err := gate.Verify(code)
	if err != nil || !ok {
		m.AdminAuthFailuresTotal.Inc()
		return false
	}
	return true
}
