package claim

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"attendify/internal/logger"
)

const (
	tokenLockPrefix     = "token_lock:"
	DefaultTokenLockTTL = 24 * time.Hour
)

// unlockScript deletes the key only while it still names the holder.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker shares token locks between attendify instances. A lock
// outlives the claim request: it is held until the TTL lapses so the token
// is not re-offered while the attendee has yet to accept.
type RedisLocker struct {
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedisLocker(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisLocker {
	if ttl <= 0 {
		log.Warn("REDIS", fmt.Sprintf("invalid token lock TTL %s, using %s", ttl, DefaultTokenLockTTL))
		ttl = DefaultTokenLockTTL
	}
	log.Info("REDIS", fmt.Sprintf("Using token lock duration of %s", ttl))
	return &RedisLocker{Client: client, TTL: ttl, Logger: log}
}

func tokenLockKey(tokenID string) string {
	return tokenLockPrefix + tokenID
}

func (r *RedisLocker) LockToken(ctx context.Context, tokenID, holder string) (bool, error) {
	ok, err := r.Client.SetNX(ctx, tokenLockKey(tokenID), holder, r.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("lock token %s: %w", tokenID, err)
	}
	return ok, nil
}

func (r *RedisLocker) UnlockToken(ctx context.Context, tokenID, holder string) error {
	if err := unlockScript.Run(ctx, r.Client, []string{tokenLockKey(tokenID)}, holder).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("unlock token %s: %w", tokenID, err)
	}
	return nil
}

// TokenHolder reports who holds the lock on tokenID, or "" when unlocked.
func (r *RedisLocker) TokenHolder(ctx context.Context, tokenID string) (string, error) {
	holder, err := r.Client.Get(ctx, tokenLockKey(tokenID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return holder, nil
}

// WatchExpiry calls onExpire with the token id of every token lock whose TTL
// lapses, until ctx is done. It needs keyspace notifications for expired
// keys; it tries to enable them and carries on with a warning if the server
// refuses.
func (r *RedisLocker) WatchExpiry(ctx context.Context, onExpire func(tokenID string)) error {
	if err := r.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		r.Logger.Warn("REDIS", fmt.Sprintf("Failed to enable keyspace notifications: %v", err))
	}

	channel := fmt.Sprintf("__keyevent@%d__:expired", r.Client.Options().DB)
	pubsub := r.Client.PSubscribe(ctx, channel)
	defer pubsub.Close()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", channel, err)
	}
	r.Logger.Info("REDIS", fmt.Sprintf("Subscribed to %s", channel))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			tokenID, found := strings.CutPrefix(msg.Payload, tokenLockPrefix)
			if !found {
				continue
			}
			r.Logger.Info("REDIS", fmt.Sprintf("Token lock expired for %s", tokenID))
			onExpire(tokenID)
		}
	}
}
