// Package ledger is the durable append-only record of placed orders.
// Records live in memory between Load and Flush; the CSV file is the
// system of record across process restarts.
package ledger

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/mgriffes/redscan/pkg/logger"
)

// TimeLayout serializes timestamps to the second; purchase timestamps
// must survive the round trip losslessly for holding-period arithmetic.
const TimeLayout = "2006-01-02 15:04:05"

// Actions recorded in the ledger.
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
)

var header = []string{"time", "symbol", "action", "quantity", "price", "purchase_timestamp"}

// Record is one placed order.
type Record struct {
	Time        time.Time // when the order was placed
	Symbol      string
	Action      string
	Quantity    int
	Price       float64 // average fill price; meaningless when PriceKnown is false
	PriceKnown  bool
	PurchasedAt time.Time // full datetime, drives holding-period checks
}

// Ledger holds the in-memory trade records backed by a CSV file.
type Ledger struct {
	path    string
	logger  *logger.Logger
	records []Record
}

// New creates a ledger backed by the given CSV path.
func New(path string, log *logger.Logger) *Ledger {
	return &Ledger{path: path, logger: log}
}

// Load reads all historical records from the CSV file. A missing or
// unreadable file yields an empty ledger; startup never aborts on a
// bad ledger, it is logged and treated as empty.
func (l *Ledger) Load() {
	l.records = nil

	f, err := os.Open(l.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			l.logger.WithError(err).Error("Failed to open trade ledger, starting empty")
		}
		return
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		l.logger.WithError(err).Error("Failed to read trade ledger, starting empty")
		return
	}

	for i, row := range rows {
		if i == 0 {
			continue // header
		}
		rec, err := parseRow(row)
		if err != nil {
			l.logger.WithFields(map[string]interface{}{
				"line":  i + 1,
				"error": err.Error(),
			}).Warn("Skipping malformed ledger row")
			continue
		}
		l.records = append(l.records, rec)
	}

	l.logger.WithField("count", len(l.records)).Info("Loaded trade records")
}

// Append adds a record to the in-memory sequence. Durability comes
// only from a later Flush.
func (l *Ledger) Append(rec Record) {
	l.records = append(l.records, rec)
}

// Records returns the in-memory records, oldest first.
func (l *Ledger) Records() []Record {
	return l.records
}

// Len returns the number of in-memory records.
func (l *Ledger) Len() int {
	return len(l.records)
}

// LatestBuy scans the ledger newest-to-oldest and returns the most
// recent BUY record for the symbol.
func (l *Ledger) LatestBuy(symbol string) (Record, bool) {
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].Symbol == symbol && l.records[i].Action == ActionBuy {
			return l.records[i], true
		}
	}
	return Record{}, false
}

// Flush serializes the full in-memory sequence to the CSV file.
func (l *Ledger) Flush() error {
	f, err := os.Create(l.path)
	if err != nil {
		return fmt.Errorf("create trade ledger: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write ledger header: %w", err)
	}

	for _, rec := range l.records {
		price := "N/A"
		if rec.PriceKnown {
			price = strconv.FormatFloat(rec.Price, 'f', -1, 64)
		}
		row := []string{
			rec.Time.Format(TimeLayout),
			rec.Symbol,
			rec.Action,
			strconv.Itoa(rec.Quantity),
			price,
			rec.PurchasedAt.Format(TimeLayout),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write ledger row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush trade ledger: %w", err)
	}

	l.logger.WithFields(map[string]interface{}{
		"count": len(l.records),
		"path":  l.path,
	}).Info("Trades saved")
	return nil
}

func parseRow(row []string) (Record, error) {
	if len(row) != len(header) {
		return Record{}, fmt.Errorf("expected %d columns, got %d", len(header), len(row))
	}

	placed, err := time.Parse(TimeLayout, row[0])
	if err != nil {
		return Record{}, fmt.Errorf("parse time: %w", err)
	}

	quantity, err := strconv.Atoi(row[3])
	if err != nil {
		return Record{}, fmt.Errorf("parse quantity: %w", err)
	}

	rec := Record{
		Time:     placed,
		Symbol:   row[1],
		Action:   row[2],
		Quantity: quantity,
	}

	if row[4] != "" && row[4] != "N/A" {
		price, err := strconv.ParseFloat(row[4], 64)
		if err != nil {
			return Record{}, fmt.Errorf("parse price: %w", err)
		}
		rec.Price = price
		rec.PriceKnown = true
	}

	purchased, err := time.Parse(TimeLayout, row[5])
	if err != nil {
		return Record{}, fmt.Errorf("parse purchase timestamp: %w", err)
	}
	rec.PurchasedAt = purchased

	return rec, nil
}
