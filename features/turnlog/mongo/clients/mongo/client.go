// Package mongo implements the low-level MongoDB client used by the turn log
// store.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	mongodriver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"goa.design/clue/health"

	"goa.design/parley/runtime/dialog/turnlog"
)

type (
	// Client exposes Mongo-backed operations for the decision audit trail.
	Client interface {
		health.Pinger

		Append(ctx context.Context, e turnlog.Entry) (turnlog.Entry, error)
		List(ctx context.Context, dialogID, cursor string, limit int) (turnlog.Page, error)
	}

	// Options configures the Mongo client implementation.
	Options struct {
		Client     *mongodriver.Client
		Database   string
		Collection string
		Timeout    time.Duration
	}

	client struct {
		mongo   *mongodriver.Client
		coll    collection
		timeout time.Duration
	}

	entryDocument struct {
		ID        primitive.ObjectID `bson:"_id,omitempty"`
		DialogID  string             `bson:"dialog_id"`
		Turn      int                `bson:"turn"`
		Action    string             `bson:"action"`
		PrevState string             `bson:"prev_state,omitempty"`
		NextState string             `bson:"next_state"`
		Reasons   []string           `bson:"reasons,omitempty"`
		Mode      string             `bson:"mode,omitempty"`
		At        time.Time          `bson:"at"`
	}
)

const (
	defaultCollection = "dialog_turn_log"
	defaultTimeout    = 5 * time.Second
	defaultPageLimit  = 50
	clientName        = "turnlog-mongo"
)

// New returns a Client backed by the provided MongoDB client.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	mcoll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	wrapper := mongoCollection{coll: mcoll}
	if err := ensureIndexes(ctx, wrapper); err != nil {
		return nil, err
	}
	return newClientWithCollection(opts.Client, wrapper, timeout)
}

func (c *client) Name() string {
	return clientName
}

func (c *client) Ping(ctx context.Context) error {
	return c.mongo.Ping(ctx, readpref.Primary())
}

func (c *client) Append(ctx context.Context, e turnlog.Entry) (turnlog.Entry, error) {
	if e.DialogID == "" {
		return turnlog.Entry{}, errors.New("dialog id is required")
	}
	if e.Action == "" {
		return turnlog.Entry{}, errors.New("action is required")
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	doc := entryDocument{
		DialogID:  e.DialogID,
		Turn:      e.Turn,
		Action:    e.Action,
		PrevState: e.PrevState,
		NextState: e.NextState,
		Reasons:   append([]string(nil), e.Reasons...),
		Mode:      e.Mode,
		At:        at.UTC(),
	}
	res, err := c.coll.InsertOne(ctx, doc)
	if err != nil {
		return turnlog.Entry{}, err
	}
	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return turnlog.Entry{}, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	e.ID = oid.Hex()
	e.At = doc.At
	return e, nil
}

func (c *client) List(ctx context.Context, dialogID, cursor string, limit int) (page turnlog.Page, err error) {
	if dialogID == "" {
		return turnlog.Page{}, errors.New("dialog id is required")
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}

	filter := bson.M{"dialog_id": dialogID}
	if cursor != "" {
		oid, err := primitive.ObjectIDFromHex(cursor)
		if err != nil {
			return turnlog.Page{}, fmt.Errorf("invalid cursor %q: %w", cursor, turnlog.ErrNotFound)
		}
		filter["_id"] = bson.M{"$gt": oid}
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cur, err := c.coll.Find(ctx, filter, options.Find().
		SetSort(bson.D{{Key: "_id", Value: 1}}).
		SetLimit(int64(limit+1)),
	)
	if err != nil {
		return turnlog.Page{}, err
	}
	defer func() {
		if cerr := cur.Close(ctx); err == nil && cerr != nil {
			err = cerr
		}
	}()

	var entries []turnlog.Entry
	for cur.Next(ctx) {
		var doc entryDocument
		if err := cur.Decode(&doc); err != nil {
			return turnlog.Page{}, err
		}
		entries = append(entries, turnlog.Entry{
			ID:        doc.ID.Hex(),
			DialogID:  doc.DialogID,
			Turn:      doc.Turn,
			Action:    doc.Action,
			PrevState: doc.PrevState,
			NextState: doc.NextState,
			Reasons:   append([]string(nil), doc.Reasons...),
			Mode:      doc.Mode,
			At:        doc.At,
		})
	}
	if err := cur.Err(); err != nil {
		return turnlog.Page{}, err
	}

	var next string
	if len(entries) > limit {
		next = entries[limit-1].ID
		entries = entries[:limit]
	}
	return turnlog.Page{
		Entries:    entries,
		NextCursor: next,
	}, nil
}

func (c *client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

func ensureIndexes(ctx context.Context, coll collection) error {
	index := mongodriver.IndexModel{
		Keys: bson.D{
			{Key: "dialog_id", Value: 1},
			{Key: "_id", Value: 1},
		},
	}
	_, err := coll.Indexes().CreateOne(ctx, index)
	return err
}

func newClientWithCollection(mongoClient *mongodriver.Client, coll collection, timeout time.Duration) (*client, error) {
	if coll == nil {
		return nil, errors.New("collection is required")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &client{
		mongo:   mongoClient,
		coll:    coll,
		timeout: timeout,
	}, nil
}

type collection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error)
	Indexes() indexView
}

type indexView interface {
	CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error)
}

type cursor interface {
	Next(ctx context.Context) bool
	Decode(val any) error
	Err() error
	Close(ctx context.Context) error
}

type mongoCollection struct {
	coll *mongodriver.Collection
}

func (c mongoCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongodriver.InsertOneResult, error) {
	return c.coll.InsertOne(ctx, document, opts...)
}

func (c mongoCollection) Find(ctx context.Context, filter any, opts ...*options.FindOptions) (cursor, error) {
	cur, err := c.coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return mongoCursor{cur: cur}, nil
}

func (c mongoCollection) Indexes() indexView {
	return mongoIndexView{view: c.coll.Indexes()}
}

type mongoCursor struct {
	cur *mongodriver.Cursor
}

func (c mongoCursor) Next(ctx context.Context) bool {
	return c.cur.Next(ctx)
}

func (c mongoCursor) Decode(val any) error {
	return c.cur.Decode(val)
}

func (c mongoCursor) Err() error {
	return c.cur.Err()
}

func (c mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

type mongoIndexView struct {
	view mongodriver.IndexView
}

func (v mongoIndexView) CreateOne(ctx context.Context, model mongodriver.IndexModel, opts ...*options.CreateIndexesOptions) (string, error) {
	return v.view.CreateOne(ctx, model, opts...)
}
