// Package stdlib describes the built-in operation surface of the scripting
// language: the namespaced and bare names the lowering pass (C3) validates
// calls against, and the runtime (C4) dispatches calls to. Keeping the
// metadata here (rather than duplicated in lower and runtime) means both
// packages agree on arity without importing each other.
package stdlib

// Op describes one built-in callable: its minimum and maximum positional
// arity (MaxArgs == -1 means unbounded) and the names of keyword arguments
// it accepts in addition to positional ones.
type Op struct {
	MinArgs int
	MaxArgs int
	Kwargs  []string
}

// Registry maps a full name (dotted for namespaced ops, e.g. "strategy.entry")
// to its arity description.
var Registry = map[string]Op{
	// Streaming indicators (C6). All are stateful: each call site consumes
	// one or more persistent-state slots per bar.
	"sma":          {MinArgs: 2, MaxArgs: 2},
	"ema":          {MinArgs: 2, MaxArgs: 2},
	"rma":          {MinArgs: 2, MaxArgs: 2},
	"wma":          {MinArgs: 2, MaxArgs: 2},
	"vwma":         {MinArgs: 3, MaxArgs: 3},
	"swma":         {MinArgs: 1, MaxArgs: 1},
	"bb":           {MinArgs: 2, MaxArgs: 3, Kwargs: []string{"mult"}},
	"rsi":          {MinArgs: 2, MaxArgs: 2},
	"macd":         {MinArgs: 1, MaxArgs: 4, Kwargs: []string{"fast", "slow", "signal"}},
	"mom":          {MinArgs: 2, MaxArgs: 2},
	"cci":          {MinArgs: 2, MaxArgs: 2},
	"highest":      {MinArgs: 2, MaxArgs: 2},
	"lowest":       {MinArgs: 2, MaxArgs: 2},
	"highestbars":  {MinArgs: 2, MaxArgs: 2},
	"lowestbars":   {MinArgs: 2, MaxArgs: 2},
	"stoch":        {MinArgs: 4, MaxArgs: 4},
	"cross":        {MinArgs: 2, MaxArgs: 2},
	"crossover":    {MinArgs: 2, MaxArgs: 2},
	"crossunder":   {MinArgs: 2, MaxArgs: 2},

	// Plotting (C7). Stateless with respect to persistent slots but keeps
	// per-series history in the plot registry.
	"plot": {MinArgs: 1, MaxArgs: 2, Kwargs: []string{"color", "title"}},

	// Strategy book (C7).
	"strategy.entry":     {MinArgs: 2, MaxArgs: 3, Kwargs: []string{"qty"}},
	"strategy.close":     {MinArgs: 1, MaxArgs: 1},
	"strategy.close_all": {MinArgs: 0, MaxArgs: 0},

	// Free functions with no persistent state.
	"abs": {MinArgs: 1, MaxArgs: 1},
	"min": {MinArgs: 2, MaxArgs: 2},
	"max": {MinArgs: 2, MaxArgs: 2},
}

// StatefulOps names the subset of Registry entries that consume at least one
// persistent-state slot per invocation (directly, or transitively through an
// internal composite implementation such as vwma's two nested sma slots).
var StatefulOps = map[string]bool{
	"sma": true, "ema": true, "rma": true, "wma": true, "vwma": true,
	"swma": true, "bb": true, "rsi": true, "macd": true, "mom": true,
	"cci": true, "highest": true, "lowest": true, "highestbars": true,
	"lowestbars": true, "stoch": true, "cross": true, "crossover": true,
	"crossunder": true,
}

// MarketVars are the implicit per-bar identifiers every procedure sees
// without a definition.
var MarketVars = map[string]bool{
	"open": true, "high": true, "low": true, "close": true,
	"volume": true, "time": true, "bar_index": true,
}

// Lookup reports whether name is a known built-in and its arity rule.
func Lookup(name string) (Op, bool) {
	op, ok := Registry[name]
	return op, ok
}
