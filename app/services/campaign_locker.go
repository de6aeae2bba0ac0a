package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired is returned when a campaign lock stays held past the wait budget
var ErrLockNotAcquired = errors.New("campaign lock not acquired")

// CampaignLocker serializes ledger writers for one campaign across instances.
// The conditional UPDATE in storage remains the source of truth; the lock only
// keeps concurrent admins from racing into it.
type CampaignLocker interface {
	Acquire(ctx context.Context, campaignID uint) (release func(), err error)
}

// releaseScript deletes the key only if we still own it
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisCampaignLocker implements CampaignLocker with SET NX PX and token release
type RedisCampaignLocker struct {
	client     *redis.Client
	prefix     string
	ttl        time.Duration
	wait       time.Duration
	retryDelay time.Duration
}

func NewRedisCampaignLocker(client *redis.Client, prefix string, ttl, wait time.Duration) *RedisCampaignLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &RedisCampaignLocker{
		client:     client,
		prefix:     prefix,
		ttl:        ttl,
		wait:       wait,
		retryDelay: 50 * time.Millisecond,
	}
}

func (l *RedisCampaignLocker) key(campaignID uint) string {
	if l.prefix == "" {
		return fmt.Sprintf("ledger:campaign:%d:lock", campaignID)
	}
	return fmt.Sprintf("%s:ledger:campaign:%d:lock", l.prefix, campaignID)
}

func (l *RedisCampaignLocker) Acquire(ctx context.Context, campaignID uint) (func(), error) {
	key := l.key(campaignID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
					log.Printf("campaign lock release failed for %s: %v", key, err)
				}
			}, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryDelay):
		}
	}
}

// NoopCampaignLocker is used when no cache is configured
type NoopCampaignLocker struct{}

func (NoopCampaignLocker) Acquire(ctx context.Context, campaignID uint) (func(), error) {
	return func() {}, nil
}
