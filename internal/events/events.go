// Package events defines the event shapes the running engine publishes and
// the Publisher interface it publishes them through, so internal/engine
// never imports a concrete transport directly.
package events

// BarEvent is emitted once per processed bar for a single running script.
type BarEvent struct {
	ScriptID string             `json:"script_id"`
	BarIndex int                `json:"bar_index"`
	TimeMs   int64              `json:"time_ms"`
	Close    float64            `json:"close"`
	Plots    map[string]float64 `json:"plots"`
}

// TradeEvent is emitted whenever the strategy book closes a position.
type TradeEvent struct {
	ScriptID   string  `json:"script_id"`
	ID         string  `json:"id"`
	Direction  string  `json:"direction"`
	EntryPrice float64 `json:"entry_price"`
	ExitPrice  float64 `json:"exit_price"`
	EntryTime  int64   `json:"entry_time"`
	ExitTime   int64   `json:"exit_time"`
	Size       float64 `json:"size"`
	PnL        float64 `json:"pnl"`
}

// Publisher fans out engine events to any downstream subscriber (the event
// bus, a WebSocket hub, or a no-op for tests).
type Publisher interface {
	PublishBar(BarEvent) error
	PublishTrade(TradeEvent) error
}

// NopPublisher discards every event. Used by callers that don't care to wire
// a real transport (unit tests, one-shot CLI runs).
type NopPublisher struct{}

func (NopPublisher) PublishBar(BarEvent) error     { return nil }
func (NopPublisher) PublishTrade(TradeEvent) error { return nil }
