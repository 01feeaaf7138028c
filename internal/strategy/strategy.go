// Package strategy implements the strategy book (the other half of C7):
// position tracking with weighted-average entry price, a trade ledger, and
// the entry/close/close_all operations the scripting language exposes under
// the "strategy." namespace.
package strategy

import "math"

// Direction is long or short.
type Direction int

const (
	Long Direction = iota
	Short
)

// Position is the single open position for one instrument id.
type Position struct {
	Direction Direction
	Size      float64 // always >= 0; sign is carried by Direction
	AvgPrice  float64
	EntryTime int64 // bar time_ms the position was first opened at this id
}

// Trade is one closed round-trip, appended to the ledger on close/close_all.
type Trade struct {
	ID         string
	Direction  Direction
	EntryPrice float64
	ExitPrice  float64
	EntryTime  int64
	ExitTime   int64
	Size       float64
	PnL        float64
}

// Book owns every open position and the realized trade history for one
// running procedure.
type Book struct {
	positions map[string]*Position
	Trades    []Trade
	Cash      float64
}

// NewBook returns an empty strategy book.
func NewBook() *Book { return &Book{positions: map[string]*Position{}} }

// Position returns the current position for id, or nil if flat.
func (b *Book) Position(id string) *Position { return b.positions[id] }

// Positions returns a snapshot of every open position, keyed by id.
func (b *Book) Positions() map[string]Position {
	out := make(map[string]Position, len(b.positions))
	for id, pos := range b.positions {
		out[id] = *pos
	}
	return out
}

// Entry opens or adds to a position at the given direction, quantity, and
// current close price/time. An opposite-direction position is closed first
// (recording a trade) before the new position is opened.
func (b *Book) Entry(id string, dir Direction, qty, currentClose float64, currentTime int64) {
	pos := b.positions[id]
	if pos != nil && pos.Size > 0 && pos.Direction != dir {
		b.closePosition(id, pos, currentClose, currentTime)
		pos = nil
	}
	if pos == nil {
		b.positions[id] = &Position{Direction: dir, Size: qty, AvgPrice: currentClose, EntryTime: currentTime}
		return
	}
	newSize := pos.Size + qty
	if newSize == 0 {
		delete(b.positions, id)
		return
	}
	pos.AvgPrice = (pos.Size*pos.AvgPrice + qty*currentClose) / newSize
	pos.Size = newSize
}

// Close closes the position for id at the given exit price/time, if any is
// open.
func (b *Book) Close(id string, exitPrice float64, exitTime int64) {
	pos := b.positions[id]
	if pos == nil {
		return
	}
	b.closePosition(id, pos, exitPrice, exitTime)
}

// CloseAll closes every open position at exitPrice/exitTime.
func (b *Book) CloseAll(exitPrice float64, exitTime int64) {
	for id, pos := range b.positions {
		b.closePosition(id, pos, exitPrice, exitTime)
	}
}

func (b *Book) closePosition(id string, pos *Position, exitPrice float64, exitTime int64) {
	var pnl float64
	if pos.Direction == Long {
		pnl = (exitPrice - pos.AvgPrice) * math.Abs(pos.Size)
	} else {
		pnl = (pos.AvgPrice - exitPrice) * math.Abs(pos.Size)
	}
	b.Trades = append(b.Trades, Trade{
		ID:         id,
		Direction:  pos.Direction,
		EntryPrice: pos.AvgPrice,
		ExitPrice:  exitPrice,
		EntryTime:  pos.EntryTime,
		ExitTime:   exitTime,
		Size:       pos.Size,
		PnL:        pnl,
	})
	b.Cash += pnl
	delete(b.positions, id)
}
