package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrJobAlreadyRunning is returned when another run holds the guard
var ErrJobAlreadyRunning = errors.New("a batch job is already running")

// GuardName is the single-flight key shared by matching and review runs so
// that a review never overlaps a matching pass
const GuardName = "catalog"

// ReleaseFunc gives the guard back
type ReleaseFunc func(ctx context.Context) error

// Guard grants at most one holder per name
type Guard interface {
	Acquire(ctx context.Context, name string) (ReleaseFunc, error)
}

// LocalGuard is an in-process guard
type LocalGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalGuard() *LocalGuard {
	return &LocalGuard{held: make(map[string]struct{})}
}

func (g *LocalGuard) Acquire(_ context.Context, name string) (ReleaseFunc, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.held[name]; ok {
		return nil, ErrJobAlreadyRunning
	}
	g.held[name] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, name)
			g.mu.Unlock()
		})
		return nil
	}, nil
}

var (
	releaseScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)
	extendScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// RedisGuard is a distributed guard built on SET NX PX. The lease is renewed
// in the background while held; release only deletes the key if this holder
// still owns it.
type RedisGuard struct {
	client    RedisClient
	logger    ectologger.Logger
	keyPrefix string
	ttl       time.Duration
}

// RedisClient is the subset of *redis.Client the guard uses
type RedisClient interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
}

// NewRedisGuard creates a guard
func NewRedisGuard(client RedisClient, logger ectologger.Logger, keyPrefix string, ttl time.Duration) *RedisGuard {
	if keyPrefix == "" {
		keyPrefix = "clover:lock:"
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisGuard{
		client:    client,
		logger:    logger,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

func (g *RedisGuard) Acquire(ctx context.Context, name string) (ReleaseFunc, error) {
	key := g.keyPrefix + name
	token := uuid.New().String()

	acquired, err := g.client.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !acquired {
		return nil, ErrJobAlreadyRunning
	}

	g.logger.WithContext(ctx).Debugf("Acquired guard: %s", key)

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go g.renew(renewCtx, key, token, done)

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			stop()
			<-done
			var n int64
			n, err = releaseScript.Run(ctx, g.client, []string{key}, token).Int64()
			if err == nil && n == 0 {
				g.logger.WithContext(ctx).Warnf("Guard %s expired before release", key)
			}
		})
		return err
	}, nil
}

func (g *RedisGuard) renew(ctx context.Context, key, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(g.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := extendScript.Run(ctx, g.client, []string{key}, token, g.ttl.Milliseconds()).Int64()
			if err != nil {
				if ctx.Err() == nil {
					g.logger.WithContext(ctx).WithError(err).Warnf("Failed to renew guard %s", key)
				}
				continue
			}
			if n == 0 {
				g.logger.WithContext(ctx).Errorf("Lost guard %s", key)
				return
			}
		}
	}
}
