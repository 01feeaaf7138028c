package runtime

import (
	"barlang/internal/plot"
	"barlang/internal/strategy"
)

// Row is one external OHLCV bar, decoded by the host from CSV or another
// source and handed to Feed.
type Row struct {
	TimeMs int64   `json:"time_ms"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Instrumentation receives per-call observations during bar execution, for a
// host that wants indicator-call and plot-value telemetry without the
// runtime importing a concrete metrics backend. A nil Instrument on Context
// disables instrumentation with only a nil check on the hot path.
type Instrumentation interface {
	ObserveIndicatorCall(kind string)
	SetPlotValue(title string, v float64)
}

// Context is the single mutable resource a compiled Program executes
// against: the current bar's market fields, the persistent-state table, the
// plot registry, and the strategy book. It is owned by the caller of Feed
// and threaded by reference through every subsystem.
type Context struct {
	Open, High, Low, Close, Volume float64
	TimeMs                         int64
	BarIndex                       int

	State      *StateTable
	Plots      *plot.Registry
	Book       *strategy.Book
	Instrument Instrumentation
}

// NewContext returns a fresh Context at bar_index 0 with empty state, plots,
// and strategy book.
func NewContext() *Context {
	return &Context{
		State: NewStateTable(),
		Plots: plot.NewRegistry(),
		Book:  strategy.NewBook(),
	}
}

// applyRow assigns the market fields from row onto the context ahead of bar
// execution.
func (c *Context) applyRow(row Row) {
	c.TimeMs = row.TimeMs
	c.Open = row.Open
	c.High = row.High
	c.Low = row.Low
	c.Close = row.Close
	c.Volume = row.Volume
}
