package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/dnldd/crossover/position"
	"github.com/dnldd/crossover/shared"
)

func formatF(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// WriteTradesCSV writes the provided trade ledger as csv.
func WriteTradesCSV(w io.Writer, trades []position.Trade) error {
	cw := csv.NewWriter(w)
	err := cw.Write([]string{"market", "direction", "entry_time", "exit_time", "entry_price",
		"exit_price", "quantity", "pnl", "pnl_percent", "exit_reason"})
	if err != nil {
		return err
	}

	for idx := range trades {
		t := &trades[idx]
		err := cw.Write([]string{
			t.Market,
			t.Direction.String(),
			t.EntryTime.Format(time.RFC3339),
			t.ExitTime.Format(time.RFC3339),
			formatF(t.EntryPrice),
			formatF(t.ExitPrice),
			formatF(t.Quantity),
			formatF(t.PNL),
			formatF(t.PNLPercent),
			t.ExitReason.String(),
		})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteEquityCSV writes the provided equity curve as csv.
func WriteEquityCSV(w io.Writer, equity []shared.EquityPoint) error {
	cw := csv.NewWriter(w)
	err := cw.Write([]string{"date", "equity"})
	if err != nil {
		return err
	}

	for idx := range equity {
		err := cw.Write([]string{equity[idx].Date.Format(time.RFC3339), formatF(equity[idx].Equity)})
		if err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

// writeFile creates the file at the provided path and writes to it.
func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}

	err = write(f)
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return f.Close()
}

// PersistResultCSV writes the trade ledger and equity curve of the provided result to the
// output directory, returning the written file paths.
func PersistResultCSV(dir string, result *Result) ([]string, error) {
	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return nil, fmt.Errorf("creating output directory %s: %w", dir, err)
	}

	name := sanitize(result.Strategy.Key())
	tradesPath := filepath.Join(dir, name+"_trades.csv")
	equityPath := filepath.Join(dir, name+"_equity.csv")

	err = writeFile(tradesPath, func(w io.Writer) error {
		return WriteTradesCSV(w, result.Trades)
	})
	if err != nil {
		return nil, err
	}

	err = writeFile(equityPath, func(w io.Writer) error {
		return WriteEquityCSV(w, result.Equity)
	})
	if err != nil {
		return nil, err
	}

	return []string{tradesPath, equityPath}, nil
}

// sanitize replaces characters unsafe for file names in the provided strategy key.
func sanitize(key string) string {
	b := []byte(key)
	for idx := range b {
		switch b[idx] {
		case '/', ':', '\\', ' ':
			b[idx] = '_'
		}
	}

	return string(b)
}
