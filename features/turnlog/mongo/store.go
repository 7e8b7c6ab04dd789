// Package mongo implements turnlog.Store on MongoDB. Entries append to a
// capped-free collection ordered by ObjectID, which doubles as the pagination
// cursor.
package mongo

import (
	"context"
	"errors"

	"goa.design/parley/runtime/dialog/turnlog"

	mongoclient "goa.design/parley/features/turnlog/mongo/clients/mongo"
)

type (
	// StoreOptions configures the Mongo turn log store.
	StoreOptions struct {
		// Client is the narrow Mongo client. Required.
		Client mongoclient.Client
	}

	// Store is the Mongo-backed turnlog.Store.
	Store struct {
		client mongoclient.Client
	}
)

// NewStore builds a Mongo-backed turn log store.
func NewStore(opts StoreOptions) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	return &Store{client: opts.Client}, nil
}

// Append implements turnlog.Store.
func (s *Store) Append(ctx context.Context, e turnlog.Entry) (turnlog.Entry, error) {
	return s.client.Append(ctx, e)
}

// List implements turnlog.Store.
func (s *Store) List(ctx context.Context, dialogID, cursor string, limit int) (turnlog.Page, error) {
	return s.client.List(ctx, dialogID, cursor, limit)
}
