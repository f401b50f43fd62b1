package service

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateGates spaces sends per channel: at most one send per MinInterval on
// each channel, shared by every worker of every sweep.
type RateGates struct {
	MinInterval time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewRateGates(minInterval time.Duration) *RateGates {
	return &RateGates{MinInterval: minInterval, limiters: make(map[string]*rate.Limiter)}
}

// Wait blocks until channel may send again or ctx is done.
func (g *RateGates) Wait(ctx context.Context, channel string) error {
	return g.limiter(channel).Wait(ctx)
}

func (g *RateGates) limiter(channel string) *rate.Limiter {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.limiters[channel]; ok {
		return l
	}
	limit := rate.Inf
	if g.MinInterval > 0 {
		limit = rate.Every(g.MinInterval)
	}
	l := rate.NewLimiter(limit, 1)
	g.limiters[channel] = l
	return l
}
