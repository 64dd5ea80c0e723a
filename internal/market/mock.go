package market

import (
	"context"
	"math/rand"
	"sync"
)

// MockFeed generates a synthetic random walk for local development.
type MockFeed struct {
	StartPrice float64
	Step       float64
	History    int

	mu    sync.Mutex
	price float64
	rng   *rand.Rand
}

// NewMockFeed seeds the walk; the same seed yields the same prices.
func NewMockFeed(startPrice, step float64, history int, seed int64) *MockFeed {
	if startPrice <= 0 {
		startPrice = 100.0
	}
	if step <= 0 {
		step = 0.5
	}
	if history <= 0 {
		history = 100
	}
	return &MockFeed{
		StartPrice: startPrice,
		Step:       step,
		History:    history,
		price:      startPrice,
		rng:        rand.New(rand.NewSource(seed)),
	}
}

func (m *MockFeed) FetchHistoricalSeries(ctx context.Context) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	series := make([]float64, 0, m.History)
	for i := 0; i < m.History; i++ {
		series = append(series, m.next())
	}
	return series, nil
}

func (m *MockFeed) FetchCurrentPrice(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, unavailable(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.next(), nil
}

func (m *MockFeed) next() float64 {
	m.price += (m.rng.Float64()*2 - 1) * m.Step
	if m.price <= 0 {
		m.price = m.Step
	}
	return m.price
}
