// Package engine is the host façade that ties compilation, bar execution,
// event publishing and metrics together for every running script. Like the
// indicator engine it is descended from, it keeps one map of per-key state
// and is built for single-goroutine use per script — callers that want
// concurrent scripts run one Engine.Feed per script from their own
// goroutine and synchronize externally.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"barlang/internal/events"
	"barlang/internal/lexer"
	"barlang/internal/lower"
	"barlang/internal/parser"
	"barlang/internal/runtime"
	"barlang/internal/strategy"
)

// Recorder receives timing and counter observations. Implementations wrap
// Prometheus metrics; tests can use a no-op. It is a superset of
// runtime.Instrumentation, so any Recorder can be handed directly to a
// runtime.Context to also receive per-call indicator/plot telemetry.
type Recorder interface {
	ObserveCompile(d time.Duration, ok bool)
	ObserveBar(d time.Duration)
	SetStateSlots(scriptID string, n int)
	ObserveIndicatorCall(kind string)
	SetPlotValue(title string, v float64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveCompile(time.Duration, bool) {}
func (nopRecorder) ObserveBar(time.Duration)           {}
func (nopRecorder) SetStateSlots(string, int)          {}
func (nopRecorder) ObserveIndicatorCall(string)        {}
func (nopRecorder) SetPlotValue(string, float64)       {}

// runningScript holds the compiled program and live execution context for
// one script instance, keyed by an opaque script ID chosen by the caller.
type runningScript struct {
	prog            *lower.Program
	ctx             *runtime.Context
	contentHash     string
	diagnosticCount int
}

// Engine compiles and runs scripts, publishing a BarEvent/TradeEvent after
// every fed row.
type Engine struct {
	scripts   map[string]*runningScript
	publisher events.Publisher
	recorder  Recorder
}

// New creates an Engine. A nil publisher discards events; a nil recorder
// discards metrics.
func New(publisher events.Publisher, recorder Recorder) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Engine{
		scripts:   make(map[string]*runningScript),
		publisher: publisher,
		recorder:  recorder,
	}
}

// Compile lexes, parses and lowers source, replacing any previously running
// script under the same id with a fresh context.
func (e *Engine) Compile(id, source string) error {
	start := time.Now()

	toks, lexDiags := lexer.Tokenize(source)
	if lexDiags.HasErrors() {
		e.recorder.ObserveCompile(time.Since(start), false)
		return fmt.Errorf("lex %s: %s", id, lexDiags.Items()[0].Message)
	}
	script, parseDiags := parser.Parse(toks)
	if parseDiags.HasErrors() {
		e.recorder.ObserveCompile(time.Since(start), false)
		return fmt.Errorf("parse %s: %s", id, parseDiags.Items()[0].Message)
	}
	prog, lowerDiags := lower.Lower(script)
	if lowerDiags.HasErrors() {
		e.recorder.ObserveCompile(time.Since(start), false)
		return fmt.Errorf("lower %s: %s", id, lowerDiags.Items()[0].Message)
	}

	diagCount := lexDiags.Len() + parseDiags.Len() + lowerDiags.Len()

	rc := runtime.NewContext()
	rc.Instrument = e.recorder
	e.scripts[id] = &runningScript{
		prog:            prog,
		ctx:             rc,
		contentHash:     contentHash(source),
		diagnosticCount: diagCount,
	}
	e.recorder.ObserveCompile(time.Since(start), true)
	return nil
}

// contentHash is the hex-encoded SHA-256 digest of a script's source text,
// used by the audit ledger to tell whether a stored script has drifted from
// what is currently running without storing the source twice.
func contentHash(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// Remove drops a running script and its state.
func (e *Engine) Remove(id string) { delete(e.scripts, id) }

// Audit returns the content hash and diagnostic count recorded at id's last
// successful compile, or ok=false if id is not registered.
func (e *Engine) Audit(id string) (hash string, diagnosticCount int, ok bool) {
	rs, ok := e.scripts[id]
	if !ok {
		return "", 0, false
	}
	return rs.contentHash, rs.diagnosticCount, true
}

// Feed executes one bar for the named script and publishes a BarEvent (and a
// TradeEvent per trade closed this bar, if any).
func (e *Engine) Feed(ctx context.Context, id string, row runtime.Row) error {
	rs, ok := e.scripts[id]
	if !ok {
		return fmt.Errorf("engine: unknown script %q", id)
	}

	tradesBefore := len(rs.ctx.Book.Trades)
	start := time.Now()
	if err := runtime.Feed(rs.prog, rs.ctx, row); err != nil {
		return fmt.Errorf("feed %s: %w", id, err)
	}
	e.recorder.ObserveBar(time.Since(start))
	e.recorder.SetStateSlots(id, rs.ctx.State.SlotCount())

	plots := make(map[string]float64, len(rs.ctx.Plots.Titles()))
	barIdx := rs.ctx.BarIndex - 1
	for _, title := range rs.ctx.Plots.Titles() {
		series := rs.ctx.Plots.Series(title)
		if barIdx >= 0 && barIdx < len(series) {
			plots[title] = series[barIdx]
		}
	}
	if err := e.publisher.PublishBar(events.BarEvent{
		ScriptID: id,
		BarIndex: barIdx,
		TimeMs:   row.TimeMs,
		Close:    row.Close,
		Plots:    plots,
	}); err != nil {
		return fmt.Errorf("publish bar %s: %w", id, err)
	}

	for _, tr := range rs.ctx.Book.Trades[tradesBefore:] {
		if err := e.publisher.PublishTrade(events.TradeEvent{
			ScriptID:   id,
			ID:         tr.ID,
			Direction:  directionString(tr.Direction),
			EntryPrice: tr.EntryPrice,
			ExitPrice:  tr.ExitPrice,
			EntryTime:  tr.EntryTime,
			ExitTime:   tr.ExitTime,
			Size:       tr.Size,
			PnL:        tr.PnL,
		}); err != nil {
			return fmt.Errorf("publish trade %s: %w", id, err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// SnapshotPosition is the JSON-serializable view of one open position in an
// EngineSnapshot.
type SnapshotPosition struct {
	ID        string  `json:"id"`
	Direction string  `json:"direction"`
	Size      float64 `json:"size"`
	AvgPrice  float64 `json:"average_price"`
	EntryTime int64   `json:"entry_time"`
}

// SnapshotTrade is the JSON-serializable view of one closed trade in an
// EngineSnapshot.
type SnapshotTrade struct {
	ID         string  `json:"id"`
	Direction  string  `json:"direction"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	EntryTime  int64   `json:"entry_time"`
	ExitTime   int64   `json:"exit_time"`
	Size       float64 `json:"size"`
	PnL        float64 `json:"pnl"`
}

// EngineSnapshot is a JSON-serializable view of plots, position, cash, and
// trades for one running script. It is a reporting snapshot only: unlike
// runtime.Context, it carries no indicator state and is never fed back in to
// resume a script.
type EngineSnapshot struct {
	Plots     map[string][]float64        `json:"plots"`
	Positions map[string]SnapshotPosition `json:"positions"`
	Cash      float64                     `json:"cash"`
	Trades    []SnapshotTrade             `json:"trades"`
}

// Snapshot projects the plot registry and strategy book for a running script
// into an EngineSnapshot, for callers that want to inspect state directly
// rather than through published events (e.g. an HTTP handler serving a
// chart).
func (e *Engine) Snapshot(id string) (EngineSnapshot, bool) {
	rs, ok := e.scripts[id]
	if !ok {
		return EngineSnapshot{}, false
	}

	plots := make(map[string][]float64, len(rs.ctx.Plots.Titles()))
	for _, title := range rs.ctx.Plots.Titles() {
		plots[title] = rs.ctx.Plots.Series(title)
	}

	positions := make(map[string]SnapshotPosition, len(rs.ctx.Book.Positions()))
	for id, pos := range rs.ctx.Book.Positions() {
		positions[id] = SnapshotPosition{
			ID:        id,
			Direction: directionString(pos.Direction),
			Size:      pos.Size,
			AvgPrice:  pos.AvgPrice,
			EntryTime: pos.EntryTime,
		}
	}

	trades := make([]SnapshotTrade, len(rs.ctx.Book.Trades))
	for i, tr := range rs.ctx.Book.Trades {
		trades[i] = SnapshotTrade{
			ID:         tr.ID,
			Direction:  directionString(tr.Direction),
			EntryPrice: tr.EntryPrice,
			ExitPrice:  tr.ExitPrice,
			EntryTime:  tr.EntryTime,
			ExitTime:   tr.ExitTime,
			Size:       tr.Size,
			PnL:        tr.PnL,
		}
	}

	return EngineSnapshot{
		Plots:     plots,
		Positions: positions,
		Cash:      rs.ctx.Book.Cash,
		Trades:    trades,
	}, true
}

func directionString(d strategy.Direction) string {
	if d == strategy.Short {
		return "short"
	}
	return "long"
}
