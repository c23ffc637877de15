package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/springcloudnative/edge-service/internal/config"
)

// ErrNotFound is returned when a session id does not exist or has expired.
var ErrNotFound = errors.New("session: not found")

// Store persists session state in Redis so that any gateway instance can
// serve any request. Each session is a hash keyed by namespace:id with an
// idle expiry that slides forward on every touch.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewStore creates a session store backed by client.
func NewStore(cfg config.SessionConfig, client redis.UniversalClient) *Store {
	prefix := cfg.Namespace
	if prefix == "" {
		prefix = "edge:session"
	}
	ttl := cfg.Timeout
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *Store) key(id string) string {
	return s.prefix + ":" + id
}

// Create allocates a new empty session and returns its id.
func (s *Store) Create(ctx context.Context) (string, error) {
	id := uuid.NewString()
	// A placeholder field keeps the hash alive until the first attribute
	// is written; Redis drops empty hashes immediately.
	if err := s.client.HSet(ctx, s.key(id), "_created", time.Now().UTC().Format(time.RFC3339)).Err(); err != nil {
		return "", err
	}
	if err := s.client.Expire(ctx, s.key(id), s.ttl).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// Get returns all attributes of a session and slides its expiry forward.
func (s *Store) Get(ctx context.Context, id string) (map[string]string, error) {
	attrs, err := s.client.HGetAll(ctx, s.key(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(attrs) == 0 {
		return nil, ErrNotFound
	}
	delete(attrs, "_created")
	if err := s.client.Expire(ctx, s.key(id), s.ttl).Err(); err != nil {
		return nil, err
	}
	return attrs, nil
}

// Put writes one attribute of a session and slides its expiry forward.
func (s *Store) Put(ctx context.Context, id, name, value string) error {
	exists, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	if err := s.client.HSet(ctx, s.key(id), name, value).Err(); err != nil {
		return err
	}
	return s.client.Expire(ctx, s.key(id), s.ttl).Err()
}

// Delete removes a session and all its attributes.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, s.key(id)).Err()
}

// Touch slides the session expiry forward without reading it. A false
// return means the session no longer exists.
func (s *Store) Touch(ctx context.Context, id string) (bool, error) {
	ok, err := s.client.Expire(ctx, s.key(id), s.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// TTL returns the configured idle expiry.
func (s *Store) TTL() time.Duration {
	return s.ttl
}
