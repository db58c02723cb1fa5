package market

import (
	"math/rand/v2"
	"strings"
)

// Tickers is the fixed set of supported symbols.
var Tickers = []string{
	"AAPL",
	"MSFT",
	"GOOG",
	"AMZN",
	"META",
	"NFLX",
	"TSLA",
	"NVDA",
	"AMD",
	"INTC",
}

var tickerSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(Tickers))
	for _, t := range Tickers {
		m[t] = struct{}{}
	}
	return m
}()

// Normalize 去除空白并转为大写，所有 ticker 输入先经过这里。
func Normalize(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// IsKnown reports whether the normalized ticker is supported.
func IsKnown(ticker string) bool {
	_, ok := tickerSet[Normalize(ticker)]
	return ok
}

// ListTickers returns a copy of Tickers.
func ListTickers() []string {
	out := make([]string, len(Tickers))
	copy(out, Tickers)
	return out
}

// RandomTicker picks a supported ticker uniformly.
func RandomTicker() string {
	return Tickers[rand.IntN(len(Tickers))]
}
