package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// CredentialStore persists the document id and access token in the
// local key-value substrate so they survive restarts. They are never
// written into the remote document itself.
type CredentialStore struct {
	client *redis.Client
	key    string
}

// NewCredentialStore connects to Redis at the given URL.
func NewCredentialStore(redisURL string) (*CredentialStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewCredentialStoreWithClient(redis.NewClient(opts)), nil
}

// NewCredentialStoreWithClient wraps an existing Redis client.
func NewCredentialStoreWithClient(client *redis.Client) *CredentialStore {
	return &CredentialStore{client: client, key: "galley:credentials"}
}

// Save stores the credentials without expiry.
func (s *CredentialStore) Save(ctx context.Context, creds Credentials) error {
	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}
	if err := s.client.Set(ctx, s.key, payload, 0).Err(); err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}

// Load returns the stored credentials, or zero credentials when none
// have been saved yet.
func (s *CredentialStore) Load(ctx context.Context) (Credentials, error) {
	payload, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return Credentials{}, nil
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("load credentials: %w", err)
	}
	var creds Credentials
	if err := json.Unmarshal([]byte(payload), &creds); err != nil {
		return Credentials{}, fmt.Errorf("unmarshal credentials: %w", err)
	}
	return creds, nil
}

// Clear removes the stored credentials.
func (s *CredentialStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// Ping checks the substrate connection.
func (s *CredentialStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
