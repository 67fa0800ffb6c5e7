package report

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/naihe2010/fdupves/matcher"
)

const (
	mongoDatabase   = "fdupves"
	mongoCollection = "matches"
)

// Mongo upserts records keyed by (a, b, kind).
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

func NewMongo(ctx context.Context, uri string) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("error connecting to MongoDB: %w", err)
	}
	return &Mongo{client: client, coll: client.Database(mongoDatabase).Collection(mongoCollection)}, nil
}

func (m *Mongo) Write(ctx context.Context, r matcher.Result) error {
	rec := NewRecord(r)
	filter := bson.M{"a": rec.A, "b": rec.B, "kind": rec.Kind}
	_, err := m.coll.ReplaceOne(ctx, filter, rec, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("error adding match: %w", err)
	}
	return nil
}

func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}
