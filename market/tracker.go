package market

import (
	"math"
	"sync"
)

// Stats 某个 ticker 全部历史价格的统计结果。
type Stats struct {
	Prices       []float64
	Average      float64
	StdDeviation float64
}

// PriceTracker 维护每个 ticker 的价格序列，只追加不删除。
type PriceTracker struct {
	mu     sync.RWMutex
	series map[string][]float64
}

func NewPriceTracker() *PriceTracker {
	return &PriceTracker{series: make(map[string][]float64)}
}

// Add 追加一条价格。
func (t *PriceTracker) Add(ticker string, price float64) {
	t.mu.Lock()
	t.series[ticker] = append(t.series[ticker], price)
	t.mu.Unlock()
}

// AddAll appends prices in order within one critical section.
func (t *PriceTracker) AddAll(ticker string, prices []float64) {
	if len(prices) == 0 {
		return
	}
	t.mu.Lock()
	t.series[ticker] = append(t.series[ticker], prices...)
	t.mu.Unlock()
}

// Prices returns a copy of the recorded series; nil if none.
func (t *PriceTracker) Prices(ticker string) []float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.series[ticker]
	if !ok {
		return nil
	}
	out := make([]float64, len(s))
	copy(out, s)
	return out
}

func (t *PriceTracker) Len(ticker string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.series[ticker])
}

// Stats 计算均值与总体标准差（除以 N），无数据时返回 false。
func (t *PriceTracker) Stats(ticker string) (Stats, bool) {
	prices := t.Prices(ticker)
	if len(prices) == 0 {
		return Stats{}, false
	}
	avg, std := MeanStdDev(prices)
	return Stats{Prices: prices, Average: avg, StdDeviation: std}, true
}

// MeanStdDev returns the mean and population standard deviation of vals.
func MeanStdDev(vals []float64) (float64, float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	mean := 0.0
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	var varSum float64
	for _, v := range vals {
		d := v - mean
		varSum += d * d
	}
	return mean, math.Sqrt(varSum / float64(len(vals)))
}
