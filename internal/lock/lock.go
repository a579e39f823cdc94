// Package lock provides a Redis advisory lock so that only one pipeline
// instance processes a deployment at a time. Losing mutual exclusion risks
// duplicate submissions, so acquisition failure aborts the run rather than
// queueing.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// ErrHeld is returned when another instance already holds the lock.
var ErrHeld = errors.New("lock: already held")

// releaseScript deletes the lock only when the stored token matches, so an
// expired-and-reacquired lock is never released by the previous holder.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`

// Lock is a single-holder advisory lock (SET NX PX with a random token).
type Lock struct {
	client rueidis.Client
	key    string
	ttl    time.Duration
	token  string
}

// New creates an unacquired lock on key with the given TTL.
func New(client rueidis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// Acquire takes the lock, returning ErrHeld when another holder owns it. The
// lock expires after the TTL even if Release is never called.
func (l *Lock) Acquire(ctx context.Context) error {
	token, err := newToken()
	if err != nil {
		return fmt.Errorf("lock token: %w", err)
	}

	cmd := l.client.B().Set().Key(l.key).Value(token).Nx().Px(l.ttl).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		if rueidis.IsRedisNil(err) {
			return ErrHeld
		}
		return fmt.Errorf("lock SET %s: %w", l.key, err)
	}

	l.token = token
	return nil
}

// Release frees the lock if this instance still holds it. Releasing an
// expired or never-acquired lock is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}

	cmd := l.client.B().Eval().Script(releaseScript).Numkeys(1).Key(l.key).Arg(l.token).Build()
	if err := l.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("lock release %s: %w", l.key, err)
	}

	l.token = ""
	return nil
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
