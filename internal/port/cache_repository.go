package port

import "context"

// CacheRepository backs commit idempotency and the best-effort availability
// snapshot served to cart reads.
type CacheRepository interface {
	// ClaimIdempotency marks a commit key in-flight, returns false if the key
	// was already claimed.
	ClaimIdempotency(ctx context.Context, key string) (bool, error)

	// StoreIdempotencyResult records the order produced under the key so a
	// retried request returns the original result.
	StoreIdempotencyResult(ctx context.Context, key, orderID string) error

	// GetIdempotencyResult returns the stored order id, or "" while the
	// original commit is still in flight or the key is unknown.
	GetIdempotencyResult(ctx context.Context, key string) (string, error)

	// ReleaseIdempotency frees a claimed key after a rejected commit so the
	// client may retry it.
	ReleaseIdempotency(ctx context.Context, key string) error

	// SetAvailability caches a counter snapshot for cart reads.
	SetAvailability(ctx context.Context, itemID string, qty int) error

	// GetAvailability returns a cached snapshot; ok is false on a miss.
	GetAvailability(ctx context.Context, itemID string) (qty int, ok bool, err error)

	// InvalidateAvailability drops a snapshot after a commit changes supply.
	InvalidateAvailability(ctx context.Context, itemID string) error
}
