// cmd/barlang runs a single script once over a CSV file of OHLCV bars and
// prints its plot series and closed trades, mirroring the teacher's
// cmd/backtest one-shot replay tool but driven by a user script instead of a
// fixed indicator config.
//
// Usage:
//
//	go run ./cmd/barlang --script strategy.bl --csv bars.csv
package main

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"barlang/internal/diag"
	"barlang/internal/logger"
	"barlang/internal/lower"
	"barlang/internal/runtime"
	"barlang/internal/store/sqlite"

	"barlang/internal/lexer"
	"barlang/internal/parser"
)

func main() {
	scriptPath := flag.String("script", "", "path to a .bl script file")
	csvPath := flag.String("csv", "", "path to a CSV file of OHLCV bars (time,open,high,low,close,volume)")
	dbPath := flag.String("db", "", "optional SQLite path to persist the script source and closed trades")
	scriptID := flag.String("id", "cli", "script id used when persisting to SQLite")
	flag.Parse()

	log := logger.Init("barlang", slog.LevelInfo)

	if *scriptPath == "" || *csvPath == "" {
		log.Error("both --script and --csv are required")
		os.Exit(2)
	}

	source, err := os.ReadFile(*scriptPath)
	if err != nil {
		log.Error("read script", "error", err)
		os.Exit(1)
	}

	prog, diagCount, err := compile(string(source))
	if err != nil {
		log.Error("compile", "error", err)
		os.Exit(1)
	}

	rows, err := readCSV(*csvPath)
	if err != nil {
		log.Error("read csv", "error", err)
		os.Exit(1)
	}

	ctx := runtime.NewContext()
	for i, row := range rows {
		if err := runtime.Feed(prog, ctx, row); err != nil {
			log.Error("feed", "bar", i, "error", err)
			os.Exit(1)
		}
	}

	for _, title := range ctx.Plots.Titles() {
		series := ctx.Plots.Series(title)
		last := series[len(series)-1]
		fmt.Printf("%s: %v (last of %d bars)\n", title, last, len(series))
	}
	for _, tr := range ctx.Book.Trades {
		fmt.Printf("trade %s: entry=%.4f@%d exit=%.4f@%d size=%.4f pnl=%.4f\n", tr.ID, tr.EntryPrice, tr.EntryTime, tr.ExitPrice, tr.ExitTime, tr.Size, tr.PnL)
	}
	fmt.Printf("cash: %.4f\n", ctx.Book.Cash)

	if *dbPath != "" {
		w, err := sqlite.New(sqlite.WriterConfig{DBPath: *dbPath})
		if err != nil {
			log.Error("sqlite open", "error", err)
			os.Exit(1)
		}
		defer w.Close()
		sum := sha256.Sum256(source)
		if err := w.SaveScript(*scriptID, string(source), hex.EncodeToString(sum[:]), diagCount); err != nil {
			log.Error("save script", "error", err)
		}
		for _, tr := range ctx.Book.Trades {
			if err := w.RecordTrade(*scriptID, tr); err != nil {
				log.Error("record trade", "error", err)
			}
		}
	}
}

// compile returns the lowered program and the total diagnostic count across
// all three phases (warnings included) for the audit ledger.
func compile(source string) (*lower.Program, int, error) {
	toks, lexDiags := lexer.Tokenize(source)
	if lexDiags.HasErrors() {
		return nil, 0, fmt.Errorf("%s", lexDiags.Items()[0].Message)
	}
	script, parseDiags := parser.Parse(toks)
	if parseDiags.HasErrors() {
		return nil, 0, fmt.Errorf("%s", parseDiags.Items()[0].Message)
	}
	prog, lowerDiags := lower.Lower(script)
	if lowerDiags.HasErrors() {
		return nil, 0, fmt.Errorf("%s", lowerDiags.Items()[0].Message)
	}
	var all diag.Set
	all.Merge(lexDiags)
	all.Merge(parseDiags)
	all.Merge(lowerDiags)
	return prog, all.Len(), nil
}

// readCSV parses rows of "time,open,high,low,close,volume"; time is a Unix
// millisecond timestamp. A header row is tolerated and skipped if its first
// field fails to parse as a number.
func readCSV(path string) ([]runtime.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = 6

	var rows []runtime.Row
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if first {
			first = false
			if _, err := strconv.ParseFloat(rec[0], 64); err != nil {
				continue // header row
			}
		}
		timeMs, _ := strconv.ParseInt(rec[0], 10, 64)
		open, _ := strconv.ParseFloat(rec[1], 64)
		high, _ := strconv.ParseFloat(rec[2], 64)
		low, _ := strconv.ParseFloat(rec[3], 64)
		close, _ := strconv.ParseFloat(rec[4], 64)
		volume, _ := strconv.ParseFloat(rec[5], 64)
		rows = append(rows, runtime.Row{
			TimeMs: timeMs, Open: open, High: high, Low: low, Close: close, Volume: volume,
		})
	}
	return rows, nil
}
