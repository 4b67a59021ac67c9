package directory

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"sharerelay/internal/errors"
	"sharerelay/internal/retry"
	"sharerelay/util"
)

const redisPrefix = "sharerelay:"

// RedisOptions configures [NewRedisStore].
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	PoolSize int

	// Backoff governs the initial PING; nil uses retry.StoreBackoff.
	Backoff *retry.Backoff
}

// RedisStore keeps one hash per user and one string per invitation
// code.  Every call goes through a circuit breaker so a dead Redis
// fails fast instead of stalling admin requests.
type RedisStore struct {
	client  *redis.Client
	breaker *retry.Breaker
	logger  *util.Logger
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger *util.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Address,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	bo := opts.Backoff
	if bo == nil {
		bo = retry.StoreBackoff()
	}
	err := bo.Do(ctx, func(ctx context.Context, attempt int) error {
		pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pctx).Err(); err != nil {
			logger.Debugw("redis ping failed", "address", opts.Address, "attempt", attempt, "error", err)
			return err
		}
		return nil
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", opts.Address, err)
	}

	logger.Infow("connected to Redis",
		"address", opts.Address,
		"db", opts.DB,
		"pool_size", opts.PoolSize,
	)

	s := &RedisStore{client: client, logger: logger}
	s.breaker = retry.NewBreaker(5, 30*time.Second, func(from, to retry.State) {
		logger.Warnw("redis circuit breaker", "from", from.String(), "to", to.String())
	})
	return s, nil
}

func userKey(username string) string { return redisPrefix + "user:" + username }
func codeKey(code string) string     { return redisPrefix + "code:" + code }
func userSeqKey() string             { return redisPrefix + "user:seq" }

func (s *RedisStore) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.breaker.Do(ctx, fn)
}

func (s *RedisStore) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var fields map[string]string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		fields, err = s.client.HGetAll(ctx, userKey(username)).Result()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get user from Redis: %w", err)
	}
	hash, ok := fields["password"]
	if !ok {
		return nil, errors.ErrInvalidCredentials
	}
	if err := checkPassword(hash, password); err != nil {
		return nil, err
	}
	return userFromHash(username, fields), nil
}

func userFromHash(username string, fields map[string]string) *User {
	u := &User{Username: username}
	u.ID, _ = strconv.ParseInt(fields["id"], 10, 64)
	if sec, err := strconv.ParseInt(fields["created"], 10, 64); err == nil {
		u.Created = time.Unix(sec, 0).UTC()
	}
	return u
}

func (s *RedisStore) Register(ctx context.Context, username, password string) (*User, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{Username: username, Created: time.Now().UTC().Truncate(time.Second)}
	taken := false
	err = s.do(ctx, func(ctx context.Context) error {
		// HSETNX on the password field claims the name atomically.
		claimed, err := s.client.HSetNX(ctx, userKey(username), "password", hash).Result()
		if err != nil {
			return err
		}
		if !claimed {
			taken = true
			return nil
		}
		id, err := s.client.Incr(ctx, userSeqKey()).Result()
		if err != nil {
			return err
		}
		u.ID = id
		return s.client.HSet(ctx, userKey(username),
			"id", id,
			"created", u.Created.Unix(),
		).Err()
	})
	if err != nil {
		return nil, fmt.Errorf("store user in Redis: %w", err)
	}
	if taken {
		return nil, errors.ErrUserExists
	}
	return u, nil
}

func (s *RedisStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var n int64
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.client.Exists(ctx, userKey(username)).Result()
		return err
	})
	return n > 0, err
}

func (s *RedisStore) codeOwner(ctx context.Context, code string) (string, bool, error) {
	var owner string
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		owner, err = s.client.Get(ctx, codeKey(code)).Result()
		if err == redis.Nil {
			return nil
		}
		return err
	})
	if err != nil {
		return "", false, err
	}
	return owner, owner != "", nil
}

func (s *RedisStore) ValidateInvitationCode(ctx context.Context, code, username string) (bool, error) {
	owner, ok, err := s.codeOwner(ctx, code)
	return ok && owner == username, err
}

func (s *RedisStore) IsInvitationCodeUsed(ctx context.Context, code string) (bool, error) {
	owner, ok, err := s.codeOwner(ctx, code)
	if err != nil || !ok {
		return false, err
	}
	return s.UsernameExists(ctx, owner)
}

func (s *RedisStore) AddInvitationCode(ctx context.Context, code, username string) error {
	var set bool
	err := s.do(ctx, func(ctx context.Context) error {
		var err error
		set, err = s.client.SetNX(ctx, codeKey(code), username, 0).Result()
		return err
	})
	if err != nil {
		return fmt.Errorf("store invitation code in Redis: %w", err)
	}
	if !set {
		return errors.ErrInvitationExists
	}
	return nil
}

func (s *RedisStore) HealthCheck(ctx context.Context) error {
	return s.do(ctx, func(ctx context.Context) error {
		return s.client.Ping(ctx).Err()
	})
}

func (s *RedisStore) Close() error { return s.client.Close() }
