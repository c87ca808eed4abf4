package payments

import (
	"time"

	"github.com/ManuelReschke/OproPay/internal/pkg/cache"
)

// CacheOrderMemo keeps checkout order numbers in the redis cache.
type CacheOrderMemo struct {
	TTL time.Duration
}

// NewCacheOrderMemo creates a memo whose entries expire after ttl.
func NewCacheOrderMemo(ttl time.Duration) *CacheOrderMemo {
	return &CacheOrderMemo{TTL: ttl}
}

func (m *CacheOrderMemo) Remember(key, candidate string) (string, error) {
	stored, err := cache.SetNX(key, candidate, m.TTL)
	if err != nil {
		return "", err
	}
	if stored {
		return candidate, nil
	}
	return cache.Get(key)
}
