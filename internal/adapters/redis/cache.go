package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// SetCheckoutLock takes a best-effort hold on a one-of-a-kind listing while a
// buyer sits on the gateway's hosted page. Expires on its own; nothing in the
// store references it.
func (c *Cache) SetCheckoutLock(ctx context.Context, productID, buyerID string, ttl time.Duration) (bool, error) {
	key := "checkout:" + productID
	res := c.client.SetNX(ctx, key, buyerID, ttl)
	return res.Val(), res.Err()
}

func (c *Cache) ReleaseCheckoutLock(ctx context.Context, productID string) error {
	return c.client.Del(ctx, "checkout:"+productID).Err()
}
