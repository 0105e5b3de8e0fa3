package config

// DefaultTickers is used by fetch when neither the config nor the command line names any.
var DefaultTickers = []string{
	"SPY", "QQQ", "IWM", "DIA",
	"AAPL", "AMD", "AMZN", "GOOGL", "META", "MSFT", "NFLX", "NVDA", "TSLA",
	"AMC", "GME",
}
