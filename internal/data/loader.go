package data

import (
	"context"
	"errors"
	"strings"
)

var (
	ErrNoRecords   = errors.New("no option records found")
	ErrInvalidDate = errors.New("invalid snapshot date")
)

// Loader supplies option records for a snapshot date.
type Loader interface {
	// Load returns the records for the given date. An empty tickers list loads every
	// ticker found for that date. Records come back in a deterministic order.
	Load(ctx context.Context, date string, tickers []string) ([]OptionRecord, error)

	// Tickers lists the tickers that have data for the given date.
	Tickers(date string) ([]string, error)
}

// NormalizeTicker upper-cases and trims a ticker symbol.
func NormalizeTicker(t string) string {
	return strings.ToUpper(strings.TrimSpace(t))
}
