package runtime

import (
	"math"

	"barlang/internal/indicator"
	"barlang/internal/stdlib"
	"barlang/internal/strategy"
)

// dispatchBuiltin evaluates a call to a known stdlib operation (see
// internal/stdlib). Stateful indicators fetch their persistent slot(s) from
// ctx.State before touching any history; stateless helpers (abs, min, max)
// and the plot/strategy namespace skip the state table entirely.
func (it *interp) dispatchBuiltin(name string, args []Value, kwargs map[string]Value) Value {
	ctx := it.ctx
	if stdlib.StatefulOps[name] && ctx.Instrument != nil {
		ctx.Instrument.ObserveIndicatorCall(name)
	}
	switch name {
	case "sma":
		slot := GetTyped(ctx.State, indicator.NewSMA)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1])))
	case "ema":
		slot := GetTyped(ctx.State, indicator.NewEMA)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1])))
	case "rma":
		slot := GetTyped(ctx.State, indicator.NewRMA)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1])))
	case "wma":
		slot := GetTyped(ctx.State, indicator.NewWMA)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1])))
	case "vwma":
		numSlot := GetTyped(ctx.State, indicator.NewSMA)
		denSlot := GetTyped(ctx.State, indicator.NewSMA)
		length := argInt(args[2])
		num := numSlot.Update(args[0].AsFloat()*args[1].AsFloat(), length)
		den := denSlot.Update(args[1].AsFloat(), length)
		return Num(indicator.VWMACombine(num, den))
	case "swma":
		slot := GetTyped(ctx.State, indicator.NewSWMA)
		return Num(slot.Update(args[0].AsFloat()))
	case "bb":
		slot := GetTyped(ctx.State, indicator.NewBollingerBands)
		mult := 2.0
		if len(args) == 3 {
			mult = args[2].AsFloat()
		} else if v, ok := kwargs["mult"]; ok {
			mult = v.AsFloat()
		}
		bands := slot.Update(args[0].AsFloat(), argInt(args[1]), mult)
		return Seq([]Value{Num(bands.Mean), Num(bands.Upper), Num(bands.Lower)})
	case "rsi":
		slot := GetTyped(ctx.State, indicator.NewRSI)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1])))
	case "macd":
		slot := GetTyped(ctx.State, indicator.NewMACD)
		fast, slow, signal := 12, 26, 9
		if len(args) == 4 {
			fast, slow, signal = argInt(args[1]), argInt(args[2]), argInt(args[3])
		} else {
			if v, ok := kwargs["fast"]; ok {
				fast = argInt(v)
			}
			if v, ok := kwargs["slow"]; ok {
				slow = argInt(v)
			}
			if v, ok := kwargs["signal"]; ok {
				signal = argInt(v)
			}
		}
		v := slot.Update(args[0].AsFloat(), fast, slow, signal)
		return Seq([]Value{Num(v.Macd), Num(v.Signal), Num(v.Histogram)})
	case "mom":
		slot := GetTyped(ctx.State, indicator.NewMOM)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1])))
	case "cci":
		slot := GetTyped(ctx.State, indicator.NewCCI)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1])))
	case "highest":
		slot := GetTyped(ctx.State, indicator.NewHighest)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1]), ctx.BarIndex))
	case "lowest":
		slot := GetTyped(ctx.State, indicator.NewLowest)
		return Num(slot.Update(args[0].AsFloat(), argInt(args[1]), ctx.BarIndex))
	case "highestbars":
		slot := GetTyped(ctx.State, indicator.NewHighest)
		return Num(slot.UpdateBars(args[0].AsFloat(), argInt(args[1]), ctx.BarIndex))
	case "lowestbars":
		slot := GetTyped(ctx.State, indicator.NewLowest)
		return Num(slot.UpdateBars(args[0].AsFloat(), argInt(args[1]), ctx.BarIndex))
	case "stoch":
		slot := GetTyped(ctx.State, indicator.NewStoch)
		v := slot.Update(args[0].AsFloat(), args[1].AsFloat(), args[2].AsFloat(), argInt(args[3]), ctx.BarIndex)
		return Num(v)
	case "cross":
		slot := GetTyped(ctx.State, indicator.NewCrossState)
		return Bool(slot.Cross(args[0].AsFloat(), args[1].AsFloat()))
	case "crossover":
		slot := GetTyped(ctx.State, indicator.NewCrossState)
		return Bool(slot.CrossOver(args[0].AsFloat(), args[1].AsFloat()))
	case "crossunder":
		slot := GetTyped(ctx.State, indicator.NewCrossState)
		return Bool(slot.CrossUnder(args[0].AsFloat(), args[1].AsFloat()))

	case "plot":
		title := "plot"
		if len(args) == 2 {
			title = args[1].String()
		} else if v, ok := kwargs["title"]; ok {
			title = v.String()
		}
		value := args[0].AsFloat()
		ctx.Plots.Register(title, value, ctx.BarIndex)
		if v, ok := kwargs["color"]; ok {
			ctx.Plots.SetColor(title, v.String())
		}
		if ctx.Instrument != nil {
			ctx.Instrument.SetPlotValue(title, value)
		}
		return args[0]

	case "strategy.entry":
		id := args[0].String()
		dir := strategy.Long
		if args[1].String() == "short" {
			dir = strategy.Short
		}
		qty := 1.0
		if len(args) == 3 {
			qty = args[2].AsFloat()
		} else if v, ok := kwargs["qty"]; ok {
			qty = v.AsFloat()
		}
		ctx.Book.Entry(id, dir, qty, ctx.Close, ctx.TimeMs)
		return NaN()
	case "strategy.close":
		ctx.Book.Close(args[0].String(), ctx.Close, ctx.TimeMs)
		return NaN()
	case "strategy.close_all":
		ctx.Book.CloseAll(ctx.Close, ctx.TimeMs)
		return NaN()

	case "abs":
		return Num(math.Abs(args[0].AsFloat()))
	case "min":
		return Num(math.Min(args[0].AsFloat(), args[1].AsFloat()))
	case "max":
		return Num(math.Max(args[0].AsFloat(), args[1].AsFloat()))
	default:
		return NaN()
	}
}

func argInt(v Value) int { return int(v.AsFloat()) }
