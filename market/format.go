package market

import "fmt"

// FormatPrice renders a single quote, e.g. "Current price for AAPL: $150.50\n".
func FormatPrice(ticker string, price float64) string {
	return fmt.Sprintf("Current price for %s: $%.2f\n", ticker, price)
}

// FormatBatch summarizes a GetMultiplePrices result, e.g. "Generated 5 prices for AAPL".
func FormatBatch(ticker string, count int) string {
	return fmt.Sprintf("Generated %d prices for %s", count, ticker)
}

func FormatStats(ticker string, avg, std float64, n int) string {
	return fmt.Sprintf("%s Statistics:\nAverage: $%.2f\nStd Dev: $%.2f\nSample Size: %d", ticker, avg, std, n)
}
