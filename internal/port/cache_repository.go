package port

import "context"

type CacheRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes the key so a failed request can be retried
	ReleaseIdempotency(ctx context.Context, key string) error

	// JoinClock registers a live viewer and returns current and peak viewer counts
	JoinClock(ctx context.Context, clockID string) (current int, peak int, err error)

	// LeaveClock unregisters a live viewer
	LeaveClock(ctx context.Context, clockID string) (int, error)

	// PeakViews returns the highest concurrent viewer count seen for a clock
	PeakViews(ctx context.Context, clockID string) (int, error)
}
