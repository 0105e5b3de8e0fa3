package data

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Num is a numeric field that may be unavailable. The zero value is unavailable.
type Num struct {
	Value float64
	Valid bool
}

// Some returns an available Num.
func Some(v float64) Num { return Num{Value: v, Valid: true} }

// NA is the unavailable marker.
var NA = Num{}

func (n Num) MarshalJSON() ([]byte, error) {
	if !n.Valid || math.IsNaN(n.Value) || math.IsInf(n.Value, 0) {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(n.Value, 'g', -1, 64)), nil
}

func (n *Num) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*n = NA
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("decoding number: %w", err)
	}
	*n = Some(v)
	return nil
}

func (n Num) String() string {
	if !n.Valid {
		return "n/a"
	}
	return strconv.FormatFloat(n.Value, 'f', -1, 64)
}

const dateLayout = "2006-01-02"

// Date is a calendar date encoded as YYYY-MM-DD.
type Date struct {
	time.Time
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decoding date: %w", err)
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("decoding date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

type UnderlyingType string

const (
	Stock UnderlyingType = "stock"
	ETF   UnderlyingType = "etf"
)

// Snapshot holds the per-window values of the fields that have moving averages.
type Snapshot struct {
	Price      Num `json:"price"`
	Volume     Num `json:"volume"`
	ImpliedVol Num `json:"iv"`
	Delta      Num `json:"delta"`
	Gamma      Num `json:"gamma"`
	Theta      Num `json:"theta"`
	Vega       Num `json:"vega"`
	Rho        Num `json:"rho"`
}

// OptionRecord is one option contract snapshot as supplied by the market-data provider.
type OptionRecord struct {
	Ticker          string         `json:"ticker"`
	ContractSymbol  string         `json:"contract_symbol"`
	Underlying      UnderlyingType `json:"underlying_type"`
	Type            OptionType     `json:"option_type"`
	Strike          Num            `json:"strike"`
	Expiration      Date           `json:"expiration"`
	QuoteDate       Date           `json:"quote_date"`
	LastPrice       Num            `json:"last_price"`
	Bid             Num            `json:"bid"`
	Ask             Num            `json:"ask"`
	Volume          Num            `json:"volume"`
	OpenInterest    Num            `json:"open_interest"`
	ImpliedVol      Num            `json:"iv"`
	Delta           Num            `json:"delta"`
	Gamma           Num            `json:"gamma"`
	Theta           Num            `json:"theta"`
	Vega            Num            `json:"vega"`
	Rho             Num            `json:"rho"`
	UnderlyingPrice Num            `json:"underlying_price"`
	MarketCap       Num            `json:"market_cap"`
	Avg20           Snapshot       `json:"avg_20d"`
	Avg100          Snapshot       `json:"avg_100d"`
}

// Current returns the record's live values in the same shape as the moving-average snapshots.
func (r *OptionRecord) Current() Snapshot {
	return Snapshot{
		Price:      r.LastPrice,
		Volume:     r.Volume,
		ImpliedVol: r.ImpliedVol,
		Delta:      r.Delta,
		Gamma:      r.Gamma,
		Theta:      r.Theta,
		Vega:       r.Vega,
		Rho:        r.Rho,
	}
}

// Validate checks the structural fields a record needs before it can be screened.
func (r *OptionRecord) Validate() error {
	if r.Ticker == "" {
		return fmt.Errorf("missing ticker")
	}
	switch r.Type {
	case Call, Put:
	default:
		return fmt.Errorf("invalid option_type %q", r.Type)
	}
	switch r.Underlying {
	case Stock, ETF:
	default:
		return fmt.Errorf("invalid underlying_type %q", r.Underlying)
	}
	return nil
}
