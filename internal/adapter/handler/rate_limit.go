package handler

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	buyerIdleTTL   = 3 * time.Minute
	buyerSweepTick = time.Minute
)

type buyer struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BuyerLimiter keeps one token bucket per buyer. Idle buyers are swept
// lazily on access.
type BuyerLimiter struct {
	mu        sync.Mutex
	buyers    map[string]*buyer
	rate      rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

// NewBuyerLimiter returns nil when perSecond is not positive, which disables
// limiting.
func NewBuyerLimiter(perSecond float64, burst int) *BuyerLimiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &BuyerLimiter{
		buyers: make(map[string]*buyer),
		rate:   rate.Limit(perSecond),
		burst:  burst,
		now:    time.Now,
	}
}

func (l *BuyerLimiter) Allow(buyerID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > buyerSweepTick {
		for id, b := range l.buyers {
			if now.Sub(b.lastSeen) > buyerIdleTTL {
				delete(l.buyers, id)
			}
		}
		l.lastSweep = now
	}

	b, ok := l.buyers[buyerID]
	if !ok {
		b = &buyer{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.buyers[buyerID] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}
