package main

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"spot-engine/internal/domain"
)

// WriteCSV writes one row per trade to path.
func WriteCSV(trades []domain.Trade, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"id", "symbol", "side", "entry_time", "exit_time", "entry", "exit", "qty",
		"pnl_pct", "pnl_abs", "fees", "exit_reason", "duration_min", "config_hash",
	}); err != nil {
		return err
	}
	for _, t := range trades {
		if err := w.Write([]string{
			t.ID, t.Symbol, string(t.Side),
			t.EntryTime.UTC().Format(time.RFC3339), t.ExitTime.UTC().Format(time.RFC3339),
			formatF(t.EntryPrice), formatF(t.ExitPrice), formatF(t.Quantity),
			formatF(t.PnlPct), formatF(t.PnlAbsolute), formatF(t.Fees),
			string(t.ExitReason), formatF(t.DurationMinutes), t.ConfigHash,
		}); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
