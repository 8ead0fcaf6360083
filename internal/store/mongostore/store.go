// Package mongostore implements store.Store on a MongoDB collection.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/starford/permitflow/internal/apperr"
	"github.com/starford/permitflow/internal/conncache"
	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/store"
)

// Verify *Store satisfies store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is the MongoDB-backed application store.
type Store struct {
	cache      *conncache.Cache[*mongo.Client]
	database   string
	collection string
}

// New creates a store for the given connection string. The client is dialed
// on first use and shared by every later call.
func New(uri, database, collection string, logger *slog.Logger, obs conncache.Observer) *Store {
	opts := []conncache.Option[*mongo.Client]{
		conncache.WithClose(func(ctx context.Context, c *mongo.Client) error { return c.Disconnect(ctx) }),
	}
	if logger != nil {
		opts = append(opts, conncache.WithLogger[*mongo.Client](logger))
	}
	if obs != nil {
		opts = append(opts, conncache.WithObserver[*mongo.Client](obs))
	}
	return &Store{
		cache:      conncache.New("mongo", uri, Dial, opts...),
		database:   database,
		collection: collection,
	}
}

// Dial connects a client and verifies the primary is reachable.
func Dial(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return client, nil
}

func (s *Store) coll(ctx context.Context) (*mongo.Collection, error) {
	client, err := s.cache.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return client.Database(s.database).Collection(s.collection), nil
}

// Ping acquires the client and pings the primary.
func (s *Store) Ping(ctx context.Context) error {
	client, err := s.cache.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return apperr.Store("mongostore: ping", err)
	}
	return nil
}

// Close disconnects the cached client.
func (s *Store) Close(ctx context.Context) error {
	return s.cache.Close(ctx)
}

// InsertApplication inserts the whole aggregate as one document.
func (s *Store) InsertApplication(ctx context.Context, app *models.Application) error {
	const op = "mongostore: insert application"
	rec, err := toRecord(app)
	if err != nil {
		return apperr.Store(op, err)
	}
	c, err := s.coll(ctx)
	if err != nil {
		return err
	}
	if _, err := c.InsertOne(ctx, rec); err != nil {
		return apperr.Store(op, err)
	}
	return nil
}

// GetApplication finds one aggregate by id.
func (s *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	const op = "mongostore: get application"
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, apperr.NotFound(op)
	}
	c, err := s.coll(ctx)
	if err != nil {
		return nil, err
	}
	var rec applicationRecord
	err = c.FindOne(ctx, bson.M{"_id": oid}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(op)
	}
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	app := fromRecord(&rec)
	return &app, nil
}

// ListApplications returns every aggregate in natural (insertion) order.
func (s *Store) ListApplications(ctx context.Context) ([]models.Application, error) {
	const op = "mongostore: list applications"
	c, err := s.coll(ctx)
	if err != nil {
		return nil, err
	}
	cur, err := c.Find(ctx, bson.M{})
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	var recs []applicationRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, apperr.Store(op, err)
	}
	out := make([]models.Application, len(recs))
	for i := range recs {
		out[i] = fromRecord(&recs[i])
	}
	return out, nil
}

// SetStepStatus sets processSteps.$.status on the document matching (id, step).
func (s *Store) SetStepStatus(ctx context.Context, id string, step int, status models.StepStatus) error {
	return s.updateStep(ctx, "mongostore: set step status", id, step,
		bson.M{"$set": bson.M{"processSteps.$.status": string(status)}})
}

// PushDocument appends to processSteps.$.documents on the document matching (id, step).
func (s *Store) PushDocument(ctx context.Context, id string, step int, doc models.DocumentRef) error {
	return s.updateStep(ctx, "mongostore: push document", id, step,
		bson.M{"$push": bson.M{"processSteps.$.documents": documentRecord(doc)}})
}

// updateStep runs one positional update; a zero match count means the
// application or the step does not exist.
func (s *Store) updateStep(ctx context.Context, op, id string, step int, update bson.M) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return apperr.NotFound(op)
	}
	c, err := s.coll(ctx)
	if err != nil {
		return err
	}
	res, err := c.UpdateOne(ctx, bson.M{"_id": oid, "processSteps.stepNumber": step}, update)
	if err != nil {
		return apperr.Store(op, err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(op)
	}
	return nil
}
