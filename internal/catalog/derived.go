package catalog

import (
	"math"

	"github.com/dgnsrekt/options-screener/internal/data"
)

// daysPerMonth converts days to expiration into months for the monthly yield.
const daysPerMonth = 30.0

func ratio(num, den data.Num) data.Num {
	if !num.Valid || !den.Valid || den.Value == 0 {
		return data.NA
	}
	return finite(num.Value / den.Value)
}

func sub(a, b data.Num) data.Num {
	if !a.Valid || !b.Valid {
		return data.NA
	}
	return finite(a.Value - b.Value)
}

func finite(v float64) data.Num {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return data.NA
	}
	return data.Some(v)
}

// DaysToExpiration counts calendar days from the quote date to expiration.
func DaysToExpiration(r *data.OptionRecord) data.Num {
	if r.Expiration.IsZero() || r.QuoteDate.IsZero() {
		return data.NA
	}
	return data.Some(math.Round(r.Expiration.Sub(r.QuoteDate.Time).Hours() / 24))
}

// Yield is last price over strike.
func Yield(r *data.OptionRecord) data.Num {
	return ratio(r.LastPrice, r.Strike)
}

// MonthlyYield is the yield spread over the months left to expiration.
// Contracts expiring on the quote date have no monthly yield.
func MonthlyYield(r *data.OptionRecord) data.Num {
	days := DaysToExpiration(r)
	if !days.Valid || days.Value <= 0 {
		return data.NA
	}
	return ratio(Yield(r), data.Some(days.Value/daysPerMonth))
}

// StockRatio is the option price over the underlying price.
func StockRatio(r *data.OptionRecord) data.Num {
	return ratio(r.LastPrice, r.UnderlyingPrice)
}

// VolumeOIRatio is volume over open interest; undefined when open interest is zero.
func VolumeOIRatio(r *data.OptionRecord) data.Num {
	return ratio(r.Volume, r.OpenInterest)
}

// StrikeDiff is the signed distance from the underlying price to the strike, in percent.
func StrikeDiff(r *data.OptionRecord) data.Num {
	pct := ratio(sub(r.Strike, r.UnderlyingPrice), r.UnderlyingPrice)
	if !pct.Valid {
		return data.NA
	}
	return data.Some(pct.Value * 100)
}

// Spread is ask minus bid.
func Spread(r *data.OptionRecord) data.Num {
	return sub(r.Ask, r.Bid)
}

// Deviation is the change of current relative to a moving average, as a fraction of the average.
func Deviation(current, average data.Num) data.Num {
	if !average.Valid {
		return data.NA
	}
	return ratio(sub(current, average), data.Some(math.Abs(average.Value)))
}

func inTheMoney(r *data.OptionRecord) (bool, bool) {
	if !r.Strike.Valid || !r.UnderlyingPrice.Valid {
		return false, false
	}
	if r.Type == data.Call {
		return r.UnderlyingPrice.Value > r.Strike.Value, true
	}
	return r.UnderlyingPrice.Value < r.Strike.Value, true
}

// At the money is neither in nor out of the money.
func outOfTheMoney(r *data.OptionRecord) (bool, bool) {
	if !r.Strike.Valid || !r.UnderlyingPrice.Valid {
		return false, false
	}
	if r.Type == data.Call {
		return r.UnderlyingPrice.Value < r.Strike.Value, true
	}
	return r.UnderlyingPrice.Value > r.Strike.Value, true
}

func active(r *data.OptionRecord) (bool, bool) {
	if !r.Volume.Valid {
		return false, false
	}
	return r.Volume.Value > 0, true
}

func expirationDay(r *data.OptionRecord) data.Num {
	if r.Expiration.IsZero() {
		return data.NA
	}
	return data.Some(float64(r.Expiration.Unix() / 86400))
}
