package runtime

import (
	"math"
	"testing"

	"barlang/internal/lexer"
	"barlang/internal/lower"
	"barlang/internal/parser"
)

func mustCompile(t *testing.T, src string) *lower.Program {
	t.Helper()
	toks, lexDiags := lexer.Tokenize(src)
	if lexDiags.HasErrors() {
		t.Fatalf("lexer errors: %v", lexDiags.Items())
	}
	script, parseDiags := parser.Parse(toks)
	if parseDiags.HasErrors() {
		t.Fatalf("parse errors: %v", parseDiags.Items())
	}
	prog, lowerDiags := lower.Lower(script)
	if lowerDiags.HasErrors() {
		t.Fatalf("lower errors: %v", lowerDiags.Items())
	}
	return prog
}

func feedConstant(t *testing.T, prog *lower.Program, ctx *Context, closeValue float64, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := Feed(prog, ctx, Row{TimeMs: int64(i), Close: closeValue}); err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
	}
}

// S1: x = 1 + 2 * 3 then read x.
func TestScenario_S1_ArithmeticPrecedence(t *testing.T) {
	// x is a local; to observe it from the test, plot it.
	prog2 := mustCompile(t, "x = 1 + 2 * 3\nplot(x, \"x\")\n")
	ctx2 := NewContext()
	if err := Feed(prog2, ctx2, Row{}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	got := ctx2.Plots.Series("x")
	if len(got) != 1 || got[0] != 7 {
		t.Fatalf("expected x==7, got %v", got)
	}
}

// S2: double(n) => n * 2 then y = double(10).
func TestScenario_S2_SingleLineFunction(t *testing.T) {
	prog := mustCompile(t, "double(n) => n * 2\ny = double(10)\nplot(y, \"y\")\n")
	ctx := NewContext()
	if err := Feed(prog, ctx, Row{}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	got := ctx.Plots.Series("y")
	if len(got) != 1 || got[0] != 20 {
		t.Fatalf("expected y==20, got %v", got)
	}
}

// S3: [a, b] = pair() where pair() -> [1, 2].
func TestScenario_S3_Destructure(t *testing.T) {
	prog := mustCompile(t, "pair() => [1, 2]\n[a, b] = pair()\nplot(a, \"a\")\nplot(b, \"b\")\n")
	ctx := NewContext()
	if err := Feed(prog, ctx, Row{}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if got := ctx.Plots.Series("a"); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected a==1, got %v", got)
	}
	if got := ctx.Plots.Series("b"); len(got) != 1 || got[0] != 2 {
		t.Fatalf("expected b==2, got %v", got)
	}
}

// S4: 200 constant bars, plot(sma(close, 14)): NaN for [0,12], 100 from [13,199].
func TestScenario_S4_SMAWarmup(t *testing.T) {
	prog := mustCompile(t, "plot(sma(close, 14), \"s\")\n")
	ctx := NewContext()
	feedConstant(t, prog, ctx, 100, 200)
	series := ctx.Plots.Series("s")
	if len(series) != 200 {
		t.Fatalf("expected 200 bars, got %d", len(series))
	}
	for i := 0; i < 13; i++ {
		if !math.IsNaN(series[i]) {
			t.Fatalf("bar %d: expected NaN, got %v", i, series[i])
		}
	}
	for i := 13; i < 200; i++ {
		if series[i] != 100 {
			t.Fatalf("bar %d: expected 100, got %v", i, series[i])
		}
	}
}

// S5: close = 1..50, plot(highest(close, 5)): series[i] = i+1 for i>=4, NaN before.
func TestScenario_S5_HighestRamp(t *testing.T) {
	prog := mustCompile(t, "plot(highest(close, 5), \"h\")\n")
	ctx := NewContext()
	for i := 0; i < 50; i++ {
		if err := Feed(prog, ctx, Row{Close: float64(i + 1)}); err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
	}
	series := ctx.Plots.Series("h")
	for i := 0; i < 4; i++ {
		if !math.IsNaN(series[i]) {
			t.Fatalf("bar %d: expected NaN, got %v", i, series[i])
		}
	}
	for i := 4; i < 50; i++ {
		want := float64(i + 1)
		if series[i] != want {
			t.Fatalf("bar %d: expected %v, got %v", i, want, series[i])
		}
	}
}

// S6: if close > 100 then plot(1, "signal"), close alternating 99/101.
func TestScenario_S6_ConditionalPlot(t *testing.T) {
	prog := mustCompile(t, "if close > 100\n    plot(1, \"signal\")\n")
	ctx := NewContext()
	for i := 0; i < 6; i++ {
		c := 99.0
		if i%2 == 1 {
			c = 101.0
		}
		if err := Feed(prog, ctx, Row{Close: c}); err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
	}
	series := ctx.Plots.Series("signal")
	for i := 0; i < 6; i++ {
		if i%2 == 0 {
			if !math.IsNaN(series[i]) {
				t.Fatalf("bar %d: expected NaN, got %v", i, series[i])
			}
		} else {
			if series[i] != 1 {
				t.Fatalf("bar %d: expected 1, got %v", i, series[i])
			}
		}
	}
}

func TestPlotAlignmentLaw(t *testing.T) {
	prog := mustCompile(t, "if close > 100\n    plot(1, \"signal\")\nplot(close, \"c\")\n")
	ctx := NewContext()
	for i := 0; i < 10; i++ {
		if err := Feed(prog, ctx, Row{Close: float64(i)}); err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
	}
	for _, title := range ctx.Plots.Titles() {
		if got := len(ctx.Plots.Series(title)); got != ctx.BarIndex {
			t.Fatalf("series %q length %d, want %d", title, got, ctx.BarIndex)
		}
	}
}

// Two stateful calls at the same source positions every bar must keep
// landing on their own slots: sma(close, 3) and sma(close, 5) never mix
// their running sums despite both being SMA instances.
func TestStateTable_StableSlotsAcrossBars(t *testing.T) {
	prog := mustCompile(t, "plot(sma(close, 3), \"fast\")\nplot(sma(close, 5), \"slow\")\n")
	ctx := NewContext()
	for i := 0; i < 10; i++ {
		if err := Feed(prog, ctx, Row{Close: float64(i + 1)}); err != nil {
			t.Fatalf("feed %d: %v", i, err)
		}
	}
	fast := ctx.Plots.Series("fast")
	slow := ctx.Plots.Series("slow")
	// At bar 9 (1-indexed 10th bar), fast = mean(8,9,10) = 9, slow = mean(6..10) = 8.
	if fast[9] != 9 {
		t.Fatalf("fast sma at bar 9: got %v, want 9", fast[9])
	}
	if slow[9] != 8 {
		t.Fatalf("slow sma at bar 9: got %v, want 8", slow[9])
	}
	if ctx.State.SlotCount() != 2 {
		t.Fatalf("expected 2 allocated slots, got %d", ctx.State.SlotCount())
	}
}

// A call site that only executes on some bars desynchronizes the slot
// counter relative to the call after it; the runtime must surface this as
// an error rather than silently handing the wrong indicator its state.
func TestStateTable_ConditionalCallOrderDesyncs(t *testing.T) {
	prog := mustCompile(t, "if close > 100\n    plot(sma(close, 3), \"a\")\nplot(ema(close, 3), \"b\")\n")
	ctx := NewContext()
	if err := Feed(prog, ctx, Row{Close: 200}); err != nil {
		t.Fatalf("feed 0: %v", err)
	}
	// Bar 0 took the branch: slot 0 = SMA, slot 1 = EMA.
	if err := Feed(prog, ctx, Row{Close: 1}); err == nil {
		t.Fatalf("expected a state-table desync error when bar 1 skips the branch")
	}
}

func TestScenario_PlotColorKwargReachesRegistry(t *testing.T) {
	prog := mustCompile(t, "plot(close, \"c\", color=#FF00AA)\n")
	ctx := NewContext()
	if err := Feed(prog, ctx, Row{Close: 1}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if got := ctx.Plots.Color("c"); got != "#FF00AA" {
		t.Fatalf("expected color #FF00AA, got %q", got)
	}
}

func TestStrategyEntryAndClose(t *testing.T) {
	prog := mustCompile(t, "strategy.entry(\"main\", \"long\", qty=10)\n")
	ctx := NewContext()
	if err := Feed(prog, ctx, Row{Close: 100}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	pos := ctx.Book.Position("main")
	if pos == nil || pos.Size != 10 || pos.AvgPrice != 100 {
		t.Fatalf("unexpected position: %+v", pos)
	}
	prog2 := mustCompile(t, "strategy.close(\"main\")\n")
	if err := Feed(prog2, ctx, Row{Close: 110}); err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(ctx.Book.Trades) != 1 {
		t.Fatalf("expected one closed trade, got %d", len(ctx.Book.Trades))
	}
	if ctx.Book.Trades[0].PnL != 100 {
		t.Fatalf("expected PnL 100, got %v", ctx.Book.Trades[0].PnL)
	}
}
