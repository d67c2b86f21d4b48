package handler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuyerLimiter_Disabled(t *testing.T) {
	var l *BuyerLimiter = NewBuyerLimiter(0, 10)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("buyer-1"))
	}
}

func TestBuyerLimiter_RefillAndSweep(t *testing.T) {
	now := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	l := NewBuyerLimiter(1, 1)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("buyer-1"))
	assert.False(t, l.Allow("buyer-1"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("buyer-1"))

	now = now.Add(buyerIdleTTL + buyerSweepTick)
	assert.True(t, l.Allow("buyer-2"))
	assert.NotContains(t, l.buyers, "buyer-1")
}
