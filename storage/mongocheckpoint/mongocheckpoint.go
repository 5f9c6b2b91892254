// Package mongocheckpoint implements checkpoint.Storage backed by MongoDB,
// giving checkpoints durability across restarts and a shared store for
// runners on different hosts.
package mongocheckpoint

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/agentkit/agentrt/checkpoint"
)

const (
	defaultCollection = "agent_checkpoints"
	defaultOpTimeout  = 5 * time.Second
)

// Options configures the Mongo-backed checkpoint store.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements checkpoint.Storage on top of a MongoDB collection, one
// document per run_id keyed by a unique index.
type Store struct {
	mongo   *mongodriver.Client
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New connects a Store to the given collection, creating a unique index on
// run_id if it does not already exist.
func New(ctx context.Context, opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongocheckpoint: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongocheckpoint: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)

	ictx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	index := mongodriver.IndexModel{
		Keys:    bson.D{{Key: "run_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ictx, index); err != nil {
		return nil, err
	}
	return &Store{mongo: opts.Client, coll: coll, timeout: timeout}, nil
}

// Ping verifies connectivity to the Mongo primary.
func (s *Store) Ping(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return s.mongo.Ping(ctx, readpref.Primary())
}

type checkpointDocument struct {
	RunID string              `bson:"run_id"`
	Data  checkpoint.Checkpoint `bson:"data"`
}

// Put upserts cp under runID.
func (s *Store) Put(ctx context.Context, runID string, cp checkpoint.Checkpoint) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"run_id": runID}
	update := bson.M{"$set": checkpointDocument{RunID: runID, Data: cp}}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

// Get returns the checkpoint stored for runID, or checkpoint.ErrNotFound.
func (s *Store) Get(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc checkpointDocument
	err := s.coll.FindOne(ctx, bson.M{"run_id": runID}).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	return doc.Data, nil
}

// Latest returns the checkpoint with the most recent saved_at timestamp.
func (s *Store) Latest(ctx context.Context) (checkpoint.Checkpoint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	// The bson codec keys struct fields by lowercased field name (json tags
	// are not consulted), so Checkpoint.SavedAt is stored as "savedat".
	opts := options.FindOne().SetSort(bson.D{{Key: "data.savedat", Value: -1}})
	var doc checkpointDocument
	err := s.coll.FindOne(ctx, bson.M{}, opts).Decode(&doc)
	if errors.Is(err, mongodriver.ErrNoDocuments) {
		return checkpoint.Checkpoint{}, checkpoint.ErrNotFound
	}
	if err != nil {
		return checkpoint.Checkpoint{}, err
	}
	return doc.Data, nil
}

// List returns every run_id with a stored checkpoint.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"run_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var doc struct {
			RunID string `bson:"run_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.RunID)
	}
	return ids, cur.Err()
}

// Delete removes the checkpoint stored for runID, if any.
func (s *Store) Delete(ctx context.Context, runID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"run_id": runID})
	return err
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

var _ checkpoint.Storage = (*Store)(nil)
