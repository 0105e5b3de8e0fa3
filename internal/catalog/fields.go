package catalog

import "github.com/dgnsrekt/options-screener/internal/data"

// metric is a field that exists on the live record and on both moving-average snapshots.
type metric struct {
	name string
	typ  ValueType
	doc  string
	pick func(data.Snapshot) data.Num
}

var metrics = []metric{
	{"price", Float, "option last price", func(s data.Snapshot) data.Num { return s.Price }},
	{"volume", Integer, "contracts traded", func(s data.Snapshot) data.Num { return s.Volume }},
	{"iv", Float, "implied volatility", func(s data.Snapshot) data.Num { return s.ImpliedVol }},
	{"delta", Float, "delta", func(s data.Snapshot) data.Num { return s.Delta }},
	{"gamma", Float, "gamma", func(s data.Snapshot) data.Num { return s.Gamma }},
	{"theta", Float, "theta", func(s data.Snapshot) data.Num { return s.Theta }},
	{"vega", Float, "vega", func(s data.Snapshot) data.Num { return s.Vega }},
	{"rho", Float, "rho", func(s data.Snapshot) data.Num { return s.Rho }},
}

func metricByName(name string) metric {
	for _, m := range metrics {
		if m.name == name {
			return m
		}
	}
	panic("catalog: unknown metric " + name)
}

// windowed builds the field for a metric in the given window. The current window
// bounds the live value; the deviation windows bound the value relative to the average.
func windowed(m metric, w Window) *Field {
	f := &Field{
		Name:   m.name + w.Suffix(),
		Kind:   KindRange,
		Type:   m.typ,
		Window: w,
		Doc:    m.doc,
	}
	pick := m.pick
	if w == Current {
		f.num = func(r *data.OptionRecord) data.Num { return pick(r.Current()) }
		return f
	}
	f.Type = Float
	f.Doc = m.doc + " deviation from the " + w.String() + " moving average"
	f.num = func(r *data.OptionRecord) data.Num {
		return Deviation(pick(r.Current()), pick(w.Average(r)))
	}
	return f
}

func rangeField(name string, typ ValueType, doc string, fn func(*data.OptionRecord) data.Num) *Field {
	return &Field{Name: name, Kind: KindRange, Type: typ, Doc: doc, num: fn}
}

func flagField(name, group, doc string, fn func(*data.OptionRecord) (bool, bool)) *Field {
	return &Field{Name: name, Kind: KindFlag, Type: Boolean, Group: group, Doc: doc, flag: fn}
}

func isType(t data.OptionType) func(*data.OptionRecord) (bool, bool) {
	return func(r *data.OptionRecord) (bool, bool) { return r.Type == t, true }
}

func isUnderlying(u data.UnderlyingType) func(*data.OptionRecord) (bool, bool) {
	return func(r *data.OptionRecord) (bool, bool) { return r.Underlying == u, true }
}

const (
	GroupMoneyness  = "moneyness"
	GroupOptionType = "option-type"
	GroupUnderlying = "underlying"
)

func definitions() []*Field {
	defs := []*Field{
		{Name: TickersKey, Kind: KindTickers, Type: StringList, Doc: "tickers to include, or exclude with exclude=true"},
		rangeField("diff", Float, "percent distance from underlying price to strike", StrikeDiff),
		flagField("itm", GroupMoneyness, "in the money", inTheMoney),
		flagField("otm", GroupMoneyness, "out of the money", outOfTheMoney),
		rangeField("ask-bid", Float, "ask minus bid", Spread),
		rangeField("exp", Integer, "days to expiration", DaysToExpiration),
		windowed(metricByName("price"), Current),
		rangeField("strike", Float, "strike price", func(r *data.OptionRecord) data.Num { return r.Strike }),
		flagField("calls", GroupOptionType, "call options", isType(data.Call)),
		flagField("puts", GroupOptionType, "put options", isType(data.Put)),
		flagField("stock", GroupUnderlying, "options on stocks", isUnderlying(data.Stock)),
		flagField("etf", GroupUnderlying, "options on ETFs", isUnderlying(data.ETF)),
		rangeField("sto", Float, "option price over underlying price", StockRatio),
		rangeField("yield", Float, "last price over strike", Yield),
		rangeField("myield", Float, "yield per month to expiration", MonthlyYield),
		windowed(metricByName("delta"), Current),
		windowed(metricByName("gamma"), Current),
		windowed(metricByName("theta"), Current),
		windowed(metricByName("vega"), Current),
		windowed(metricByName("rho"), Current),
		windowed(metricByName("iv"), Current),
		rangeField("oi", Integer, "open interest", func(r *data.OptionRecord) data.Num { return r.OpenInterest }),
		windowed(metricByName("volume"), Current),
		rangeField("voi", Float, "volume over open interest", VolumeOIRatio),
		rangeField("cap", Float, "underlying market capitalization", func(r *data.OptionRecord) data.Num { return r.MarketCap }),
		flagField("active", "", "traded during the session", active),
	}

	for _, w := range []Window{Dev20d, Dev100d} {
		for _, m := range metrics {
			defs = append(defs, windowed(m, w))
		}
	}

	return append(defs,
		&Field{Name: OrderByKey, Kind: KindControl, Type: Enum, Doc: "sort token, e.g. iv_desc"},
		&Field{Name: LimitKey, Kind: KindControl, Type: Integer, Doc: "maximum number of results"},
	)
}
