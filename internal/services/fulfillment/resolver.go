package fulfillment

import (
	"context"
	"strings"
	"time"
)

type Storage interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Resolver turns a plan's fulfillment payload into a followable download
// URL. Literal URLs pass through untouched; bare references are treated as
// object keys in the private bucket when one is attached.
type Resolver struct {
	storage Storage
	ttl     time.Duration
}

func NewResolver(storage Storage, ttl time.Duration) *Resolver {
	return &Resolver{storage: storage, ttl: ttl}
}

func (r *Resolver) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if r == nil || r.storage == nil || isURL(ref) {
		return ref, nil
	}
	return r.storage.PresignGet(ctx, ref, r.ttl)
}

func isURL(ref string) bool {
	return strings.Contains(ref, "://")
}
