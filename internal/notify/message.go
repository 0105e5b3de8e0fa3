package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgnsrekt/options-screener/internal/download"
	"github.com/dgnsrekt/options-screener/internal/screener"
)

// FormatScreenMessage summarizes a screening run and lists up to topN matches.
func FormatScreenMessage(res *screener.Result, topN int) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Evaluated: %d contracts\n", res.Evaluated))
	sb.WriteString(fmt.Sprintf("Matched: %d\n", res.Passed))
	sb.WriteString(fmt.Sprintf("Order: %s", res.Spec.Order().Token))

	if len(res.Matches) == 0 {
		sb.WriteString("\n\nNo contracts matched.")
		return sb.String()
	}

	sb.WriteString("\n\nTop matches:\n")
	limit := topN
	if len(res.Matches) < limit {
		limit = len(res.Matches)
	}
	for i := 0; i < limit; i++ {
		r := res.Matches[i].Record
		sb.WriteString(fmt.Sprintf("- %s %s %s strike %s last %s iv %s\n",
			r.Ticker, r.Type, r.Expiration, r.Strike, r.LastPrice, r.ImpliedVol))
	}
	if len(res.Matches) > limit {
		sb.WriteString(fmt.Sprintf("... and %d more", len(res.Matches)-limit))
	}

	return strings.TrimSuffix(sb.String(), "\n")
}

// FormatFetchMessage creates a chain fetch notification body.
func FormatFetchMessage(result *download.BatchResult, duration time.Duration, err error) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Total: %d chains\n", result.Total))
	sb.WriteString(fmt.Sprintf("Success: %d\n", result.Success))
	sb.WriteString(fmt.Sprintf("Failed: %d\n", result.Failed))
	sb.WriteString(fmt.Sprintf("Skipped: %d\n", result.Skipped))
	sb.WriteString(fmt.Sprintf("Not Found: %d\n", result.NotFound))
	sb.WriteString(fmt.Sprintf("Duration: %s", duration.Round(time.Second)))

	if err != nil {
		sb.WriteString(fmt.Sprintf("\n\nError: %v", err))
	}

	// Include first 3 error messages if available
	if len(result.Errors) > 0 {
		sb.WriteString("\n\nErrors:\n")
		limit := 3
		if len(result.Errors) < limit {
			limit = len(result.Errors)
		}
		for i := 0; i < limit; i++ {
			sb.WriteString(fmt.Sprintf("- %s\n", result.Errors[i]))
		}
		if len(result.Errors) > 3 {
			sb.WriteString(fmt.Sprintf("... and %d more errors", len(result.Errors)-3))
		}
	}

	return sb.String()
}
