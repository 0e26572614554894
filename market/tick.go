package market

import (
	"errors"
	"math"
	"sync"
	"time"
)

// Sample is one observation of the traded instrument: a bar close or a live tick.
type Sample struct {
	Time  time.Time
	Price float64
}

// Valid reports whether the price can be divided by and compared safely.
func (s Sample) Valid() bool {
	return s.Price > 0 && !math.IsNaN(s.Price) && !math.IsInf(s.Price, 0)
}

var ErrNoPrice = errors.New("price not found")

// PriceStore keeps the latest sample for the instrument.
type PriceStore struct {
	mu   sync.RWMutex
	last Sample
	set  bool
}

func NewPriceStore() *PriceStore {
	return &PriceStore{}
}

func (ps *PriceStore) Set(s Sample) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.last = s
	ps.set = true
}

func (ps *PriceStore) Get() (Sample, error) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	if !ps.set {
		return Sample{}, ErrNoPrice
	}
	return ps.last, nil
}
