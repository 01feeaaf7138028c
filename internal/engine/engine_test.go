package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"barlang/internal/events"
	"barlang/internal/runtime"
)

type recordingPublisher struct {
	mu     sync.Mutex
	bars   []events.BarEvent
	trades []events.TradeEvent
}

func (p *recordingPublisher) PublishBar(e events.BarEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bars = append(p.bars, e)
	return nil
}

func (p *recordingPublisher) PublishTrade(e events.TradeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.trades = append(p.trades, e)
	return nil
}

type recordingRecorder struct {
	mu             sync.Mutex
	compiles       int
	bars           int
	slotCounts     []int
	indicatorCalls []string
	plotValues     map[string]float64
}

func (r *recordingRecorder) ObserveCompile(d time.Duration, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.compiles++
}
func (r *recordingRecorder) ObserveBar(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bars++
}
func (r *recordingRecorder) SetStateSlots(scriptID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slotCounts = append(r.slotCounts, n)
}
func (r *recordingRecorder) ObserveIndicatorCall(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicatorCalls = append(r.indicatorCalls, kind)
}
func (r *recordingRecorder) SetPlotValue(title string, v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.plotValues == nil {
		r.plotValues = map[string]float64{}
	}
	r.plotValues[title] = v
}

func TestEngine_InstrumentsIndicatorCallsAndPlotValues(t *testing.T) {
	rec := &recordingRecorder{}
	e := New(nil, rec)
	if err := e.Compile("s1", "plot(sma(close, 2), \"s\")\n"); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := e.Feed(context.Background(), "s1", runtime.Row{Close: 10}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if err := e.Feed(context.Background(), "s1", runtime.Row{Close: 20}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(rec.indicatorCalls) != 2 || rec.indicatorCalls[0] != "sma" {
		t.Fatalf("expected 2 sma calls recorded, got %v", rec.indicatorCalls)
	}
	if rec.plotValues["s"] != 15 {
		t.Fatalf("expected last plot value 15, got %v", rec.plotValues["s"])
	}
}

func TestEngine_CompileAndFeedPublishesBars(t *testing.T) {
	pub := &recordingPublisher{}
	e := New(pub, nil)
	if err := e.Compile("s1", "plot(close, \"c\")\n"); err != nil {
		t.Fatalf("compile: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := e.Feed(context.Background(), "s1", runtime.Row{Close: float64(i)}); err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
	}
	if len(pub.bars) != 3 {
		t.Fatalf("expected 3 bar events, got %d", len(pub.bars))
	}
	if pub.bars[2].Plots["c"] != 2 {
		t.Fatalf("expected last plot value 2, got %v", pub.bars[2].Plots["c"])
	}
}

func TestEngine_CompileErrorSurfaces(t *testing.T) {
	e := New(nil, nil)
	if err := e.Compile("bad", "x = \n"); err == nil {
		t.Fatal("expected compile error")
	}
}

func TestEngine_AuditReportsHashAndDiagnosticCount(t *testing.T) {
	e := New(nil, nil)
	if err := e.Compile("s1", "plot(close, \"c\")\n"); err != nil {
		t.Fatalf("compile: %v", err)
	}
	hash, diagCount, ok := e.Audit("s1")
	if !ok {
		t.Fatal("expected s1 to be registered")
	}
	if len(hash) != 64 {
		t.Fatalf("expected a 64-char hex sha256 digest, got %q", hash)
	}
	if diagCount != 0 {
		t.Fatalf("expected 0 diagnostics for a clean compile, got %d", diagCount)
	}

	if _, _, ok := e.Audit("missing"); ok {
		t.Fatal("expected ok=false for an unregistered script")
	}
}

func TestEngine_FeedUnknownScriptErrors(t *testing.T) {
	e := New(nil, nil)
	if err := e.Feed(context.Background(), "missing", runtime.Row{}); err == nil {
		t.Fatal("expected error for unknown script")
	}
}

func TestEngine_PublishesTradeOnClose(t *testing.T) {
	pub := &recordingPublisher{}
	e := New(pub, nil)
	src := "if bar_index == 0\n    strategy.entry(\"main\", \"long\", qty=1)\nif bar_index == 1\n    strategy.close(\"main\")\n"
	if err := e.Compile("t1", src); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := e.Feed(context.Background(), "t1", runtime.Row{Close: 100}); err != nil {
		t.Fatalf("feed entry: %v", err)
	}
	if err := e.Feed(context.Background(), "t1", runtime.Row{Close: 110}); err != nil {
		t.Fatalf("feed close: %v", err)
	}
	if len(pub.trades) != 1 {
		t.Fatalf("expected 1 trade event, got %d", len(pub.trades))
	}
	if pub.trades[0].PnL != 10 {
		t.Fatalf("expected pnl 10, got %v", pub.trades[0].PnL)
	}
}
