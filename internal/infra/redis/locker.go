package redis

import (
	"context"
	"log"
	"time"

	"exam-arena-service/internal/app"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// release deletes the lock only while it still holds our value.
var release = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`)

// Locker is a single-key SET NX lock.
type Locker struct {
	client *redis.Client
}

var _ app.Locker = (*Locker)(nil)

func NewLocker(client *redis.Client) *Locker {
	return &Locker{client: client}
}

func (l *Locker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	value := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil || !ok {
		return nil, false, err
	}
	unlock := func() {
		deleted, err := release.Run(context.Background(), l.client, []string{key}, value).Int64()
		if err != nil {
			log.Printf("release lock %s: %v", key, err)
		} else if deleted == 0 {
			log.Printf("lock %s expired before release", key)
		}
	}
	return unlock, true, nil
}
