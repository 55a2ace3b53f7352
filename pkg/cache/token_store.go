package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"

	"github.com/noah-isme/calendar2youtube/pkg/oauth"
)

type keyValue interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

type lookupRecorder interface {
	RecordTokenLookup(hit bool)
}

// RedisTokenStore keeps the OAuth token under a single Redis key so several
// hosts can share one consent.
type RedisTokenStore struct {
	client  keyValue
	key     string
	metrics lookupRecorder
}

// NewRedisTokenStore constructs the store. metrics may be nil.
func NewRedisTokenStore(client keyValue, key string, metrics lookupRecorder) *RedisTokenStore {
	if key == "" {
		key = "calendar2youtube:oauth-token"
	}
	return &RedisTokenStore{client: client, key: key, metrics: metrics}
}

// Load reads the token; a missing key yields oauth.ErrNoToken.
func (s *RedisTokenStore) Load(ctx context.Context) (*oauth2.Token, error) {
	raw, err := s.client.Get(ctx, s.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.record(false)
			return nil, oauth.ErrNoToken
		}
		return nil, fmt.Errorf("redis get %s: %w", s.key, err)
	}
	s.record(true)
	return oauth.DecodeToken(raw)
}

// Save stores the token without expiry; the refresh token outlives the access token.
func (s *RedisTokenStore) Save(ctx context.Context, token *oauth2.Token) error {
	payload, err := oauth.EncodeToken(token)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisTokenStore) record(hit bool) {
	if s.metrics != nil {
		s.metrics.RecordTokenLookup(hit)
	}
}
