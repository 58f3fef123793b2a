package valkey

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	valkeylib "github.com/valkey-io/valkey-go"
)

// unlockScript deletes the key only while it still holds our token.
var unlockScript = valkeylib.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// TryLock takes a SET NX EX lock on the prefixed key. acquired is false when
// another holder owns it; that is not an error.
func (c *Client) TryLock(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	fullKey := c.Key(key)

	err := c.inner.Do(ctx, c.inner.B().Set().Key(fullKey).Value(token).Nx().Ex(ttl).Build()).Error()
	if err != nil {
		if IsNil(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lock %s: %w", fullKey, err)
	}
	return token, true, nil
}

// Unlock releases the lock if token still owns it. An expired or stolen lock
// is left alone.
func (c *Client) Unlock(ctx context.Context, key, token string) error {
	fullKey := c.Key(key)
	if err := unlockScript.Exec(ctx, c.inner, []string{fullKey}, []string{token}).Error(); err != nil && !IsNil(err) {
		return fmt.Errorf("unlock %s: %w", fullKey, err)
	}
	return nil
}
