package queue

import "context"

type keyCtx struct{}

// WithKey attaches a partition/dedup key that brokers supporting one use.
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, keyCtx{}, key)
}

// KeyFromContext returns the key set by WithKey, or nil.
func KeyFromContext(ctx context.Context) []byte {
	key, _ := ctx.Value(keyCtx{}).(string)
	if key == "" {
		return nil
	}
	return []byte(key)
}
