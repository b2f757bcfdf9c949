package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"parkfee-bot/internal/domain"
)

// redisAPI is the subset of *redis.Client used by RedisSessions.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisSession struct {
	Stage     string    `json:"stage"`
	Plate     string    `json:"plate"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RedisSessions keeps sessions as JSON values whose key TTL is the session
// expiry.
type RedisSessions struct {
	client redisAPI
	ttl    time.Duration
}

// NewRedisSessions returns redis-backed session storage.
func NewRedisSessions(client redisAPI, ttl time.Duration) (*RedisSessions, error) {
	if client == nil {
		return nil, errors.New("repository: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisSessions{client: client, ttl: ttl}, nil
}

func (r *RedisSessions) key(userID string) string {
	return fmt.Sprintf("parkfee:session:%s", userID)
}

func (r *RedisSessions) Load(ctx context.Context, userID string) (domain.Session, bool, error) {
	raw, err := r.client.Get(ctx, r.key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: redis get: %w", err)
	}
	var stored redisSession
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return domain.Session{}, false, fmt.Errorf("repository: redis decode: %w", err)
	}
	return domain.Session{
		UserID:    userID,
		Stage:     domain.ParseStage(stored.Stage),
		Plate:     domain.Plate(stored.Plate),
		UpdatedAt: stored.UpdatedAt,
	}, true, nil
}

func (r *RedisSessions) Save(ctx context.Context, s domain.Session) error {
	if s.UserID == "" {
		return errors.New("repository: redis save: user id is required")
	}
	data, err := json.Marshal(redisSession{
		Stage:     string(s.Stage),
		Plate:     s.Plate.String(),
		UpdatedAt: s.UpdatedAt,
	})
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(s.UserID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("repository: redis set: %w", err)
	}
	return nil
}

func (r *RedisSessions) Delete(ctx context.Context, userID string) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("repository: redis del: %w", err)
	}
	return nil
}

// NewRedisClient returns a configured go-redis client and validates the
// connection with PING.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	if addr == "" {
		return nil, errors.New("repository: redis addr is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("repository: redis ping: %w", err)
	}
	return client, nil
}
