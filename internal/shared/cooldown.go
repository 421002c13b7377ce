package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ResendCooldownKey builds the redis key guarding approval-request resends for
// one invoice.
func ResendCooldownKey(invoiceID string) string {
	return fmt.Sprintf("invoice:%s:resend-cooldown", invoiceID)
}

// Cooldown enforces a minimum interval between repeats of an action. The
// remaining time is owned by a redis TTL, so it needs no per-instance timer
// and nothing to tear down on shutdown.
type Cooldown struct {
	client *redis.Client
}

// NewCooldown constructs a Cooldown on the given redis client.
func NewCooldown(client *redis.Client) *Cooldown {
	return &Cooldown{client: client}
}

// Start arms the cooldown for key. An already-armed key keeps its original
// expiry.
func (c *Cooldown) Start(ctx context.Context, key string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.SetNX(ctx, key, 1, ttl).Err()
}

// Remaining returns the time left on the cooldown, zero when expired or never
// armed.
func (c *Cooldown) Remaining(ctx context.Context, key string) (time.Duration, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

// Clear disarms the cooldown, used by operational tooling.
func (c *Cooldown) Clear(ctx context.Context, key string) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, key).Err()
}
