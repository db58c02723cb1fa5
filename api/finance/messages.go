// Package finance defines the finance.StockService wire contract: request and
// response messages, the JSON codec they travel in, the grpc service
// descriptor and a typed client.
package finance

type TickerListRequest struct{}

type TickerListResponse struct {
	Tickers []string `json:"tickers"`
}

// PriceRequest is used by both GetPrice and StreamPrices.
type PriceRequest struct {
	Ticker string `json:"ticker"`
}

type PriceResponse struct {
	Ticker           string  `json:"ticker"`
	Price            float64 `json:"price"`
	FormattedMessage string  `json:"formatted_message"`
}

type MultiplePricesRequest struct {
	Ticker string `json:"ticker"`
	Count  int32  `json:"count"`
}

type MultiplePricesResponse struct {
	Ticker           string    `json:"ticker"`
	Prices           []float64 `json:"prices"`
	FormattedMessage string    `json:"formatted_message"`
}

type StatsRequest struct {
	Ticker string `json:"ticker"`
}

type StatsResponse struct {
	Ticker           string    `json:"ticker"`
	Prices           []float64 `json:"prices"`
	Average          float64   `json:"average"`
	StdDeviation     float64   `json:"std_deviation"`
	FormattedMessage string    `json:"formatted_message"`
}
