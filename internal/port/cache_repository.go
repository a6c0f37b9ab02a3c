package port

import "context"

type CacheRepository interface {
	// ClaimIdempotencyKey binds key to orderID if unclaimed. When the key is
	// already taken it returns false and the order id it is bound to.
	ClaimIdempotencyKey(ctx context.Context, key, orderID string) (bool, string, error)

	// ReleaseIdempotencyKey frees a key whose request never produced an order
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}
