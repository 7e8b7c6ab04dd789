// Package redis implements session.Store on Redis: one JSON-encoded snapshot
// per dialog under a prefixed key, expiring with the configured TTL so
// abandoned dialogs clean themselves up.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"goa.design/parley/runtime/dialog/session"

	redisclient "goa.design/parley/features/session/redis/clients/redis"
)

const (
	defaultKeyPrefix = "parley:session:"
	defaultTTL       = 24 * time.Hour
)

type (
	// StoreOptions configures the Redis session store.
	StoreOptions struct {
		// Client is the narrow Redis client. Required.
		Client redisclient.Client
		// KeyPrefix namespaces snapshot keys. Defaults to "parley:session:".
		KeyPrefix string
		// TTL is the snapshot expiry. Zero uses 24h; negative stores without
		// expiry.
		TTL time.Duration
	}

	// Store is the Redis-backed session.Store.
	Store struct {
		client redisclient.Client
		prefix string
		ttl    time.Duration
	}
)

// NewStore builds a Redis-backed session store.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	prefix := opts.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	ttl := opts.TTL
	if ttl == 0 {
		ttl = defaultTTL
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Store{client: opts.Client, prefix: prefix, ttl: ttl}, nil
}

// Save implements session.Store.
func (s *Store) Save(ctx context.Context, snap session.Snapshot) error {
	if snap.DialogID == "" {
		return errors.New("dialog ID is required")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return s.client.Set(ctx, s.key(snap.DialogID), data, s.ttl)
}

// Load implements session.Store.
func (s *Store) Load(ctx context.Context, dialogID string) (session.Snapshot, error) {
	if dialogID == "" {
		return session.Snapshot{}, errors.New("dialog ID is required")
	}
	data, ok, err := s.client.Get(ctx, s.key(dialogID))
	if err != nil {
		return session.Snapshot{}, err
	}
	if !ok {
		return session.Snapshot{}, session.ErrNotFound
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// Delete implements session.Store.
func (s *Store) Delete(ctx context.Context, dialogID string) error {
	if dialogID == "" {
		return errors.New("dialog ID is required")
	}
	return s.client.Del(ctx, s.key(dialogID))
}

func (s *Store) key(dialogID string) string {
	return s.prefix + dialogID
}
