package market

import (
	"math/rand/v2"
	"sync"
)

// Generated prices fall in [MinPrice, MaxPrice).
const (
	MinPrice = 10.0
	MaxPrice = 1000.0
)

// PriceSource produces synthetic prices.
type PriceSource interface {
	Next() float64
}

type globalSource struct{}

func (globalSource) Next() float64 {
	return MinPrice + rand.Float64()*(MaxPrice-MinPrice)
}

// NewRandomSource 使用全局随机源，可并发调用。
func NewRandomSource() PriceSource {
	return globalSource{}
}

// SeededSource is deterministic for a given seed; safe for concurrent use.
type SeededSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSeededSource(seed uint64) *SeededSource {
	return &SeededSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *SeededSource) Next() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return MinPrice + s.rng.Float64()*(MaxPrice-MinPrice)
}

// RandomQuote returns a random supported ticker with a price for it.
func RandomQuote(src PriceSource) (string, float64) {
	return RandomTicker(), src.Next()
}
