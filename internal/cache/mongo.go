package cache

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/foofork/riptide/internal/types"
)

// mongoDoc stores one cached entry. Value is opaque (a serialized
// types.Document), kept base64-encoded so the driver never tries to
// interpret it as a sub-document.
type mongoDoc struct {
	Fingerprint string    `bson:"_id"`
	Value       string    `bson:"value"`
	ExpiresAt   time.Time `bson:"expires_at"`
}

// MongoStore is a Port backed by a MongoDB collection, for deployments
// sharing one cache view across processes, grounded on the teacher's
// storage/database.go connect/ping idiom.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to uri and prepares collection in database,
// with a TTL index on expires_at so Mongo reaps stale entries itself.
func NewMongoStore(uri, database, collection string, logger *slog.Logger) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb index: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "cache_store_mongo"),
	}, nil
}

func (s *MongoStore) Get(ctx context.Context, fp types.ResourceFingerprint) ([]byte, bool, error) {
	var doc mongoDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": string(fp)}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mongodb get: %w", err)
	}
	if time.Now().After(doc.ExpiresAt) {
		return nil, false, nil
	}
	raw, err := base64.StdEncoding.DecodeString(doc.Value)
	if err != nil {
		return nil, false, fmt.Errorf("corrupt cached value: %w", err)
	}
	return raw, true, nil
}

func (s *MongoStore) Set(ctx context.Context, fp types.ResourceFingerprint, value []byte, ttl time.Duration) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": string(fp)},
		bson.M{"$set": bson.M{
			"value":      base64.StdEncoding.EncodeToString(value),
			"expires_at": time.Now().Add(ttl),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongodb set: %w", err)
	}
	return nil
}

func (s *MongoStore) Invalidate(ctx context.Context, fp types.ResourceFingerprint) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"_id": string(fp)})
	if err != nil {
		return fmt.Errorf("mongodb invalidate: %w", err)
	}
	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
