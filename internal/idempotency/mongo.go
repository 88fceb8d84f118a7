package idempotency

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

// mongoDoc mirrors one claim/result row. Result is stored as base64 since
// the cached payload is an opaque serialized PipelineResult, not a
// document the driver should try to interpret.
type mongoDoc struct {
	Fingerprint     string    `bson:"_id"`
	ClaimExpiresAt  time.Time `bson:"claim_expires_at"`
	Result          string    `bson:"result,omitempty"`
	HasResult       bool      `bson:"has_result"`
	ResultExpiresAt time.Time `bson:"result_expires_at,omitempty"`
}

// MongoStore is a Store backed by a MongoDB collection, for deployments
// running more than one riptide process sharing one idempotency view.
// Claims are acquired with an upsert filtered on "not already claimed",
// which Mongo evaluates atomically per document, giving the same
// exactly-one-winner guarantee the in-memory store gets from its mutex.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	claimTTL   time.Duration
	logger     *slog.Logger
}

// NewMongoStore connects to uri and prepares collection in database for
// idempotency claims. A TTL index on claim_expires_at lets Mongo itself
// reap rows whose claim has expired between sweeps.
func NewMongoStore(uri, database, collection string, claimTTL time.Duration, logger *slog.Logger) (*MongoStore, error) {
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
		Keys:    bson.D{{Key: "claim_expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb index: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: coll,
		claimTTL:   claimTTL,
		logger:     logger.With("component", "idempotency_store_mongo"),
	}, nil
}

// TryAcquire claims fp by upserting a row only if no unexpired claim
// already exists. A DuplicateKey error on the insert path means another
// process won the race.
func (s *MongoStore) TryAcquire(ctx context.Context, fp types.ResourceFingerprint) (bool, error) {
	now := time.Now()
	filter := bson.M{
		"_id": string(fp),
		"$or": bson.A{
			bson.M{"claim_expires_at": bson.M{"$lte": now}},
			bson.M{"claim_expires_at": bson.M{"$exists": false}},
		},
	}
	update := bson.M{
		"$set": bson.M{"claim_expires_at": now.Add(s.claimTTL)},
		"$setOnInsert": bson.M{
			"_id":        string(fp),
			"has_result": false,
		},
	}
	opts := options.Update().SetUpsert(true)

	res, err := s.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("mongodb claim upsert: %w", err)
	}
	if res.MatchedCount == 0 && res.UpsertedCount == 0 {
		return false, nil
	}
	return true, nil
}

// Release clears fp's claim, keeping any cached result in place.
func (s *MongoStore) Release(fp types.ResourceFingerprint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": string(fp)},
		bson.M{"$set": bson.M{"claim_expires_at": time.Time{}}},
	)
	if err != nil {
		s.logger.Warn("release failed", "fingerprint", fp, "error", err)
	}
}

// StoreResult caches result under fp for ttl.
func (s *MongoStore) StoreResult(fp types.ResourceFingerprint, result []byte, ttl time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": string(fp)},
		bson.M{"$set": bson.M{
			"result":            base64.StdEncoding.EncodeToString(result),
			"has_result":        true,
			"result_expires_at": time.Now().Add(ttl),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		s.logger.Warn("store result failed", "fingerprint", fp, "error", err)
	}
}

// GetResult returns fp's cached result if one exists and hasn't expired.
func (s *MongoStore) GetResult(fp types.ResourceFingerprint) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var doc mongoDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": string(fp)}).Decode(&doc)
	if err != nil {
		return nil, false
	}
	if !doc.HasResult || time.Now().After(doc.ResultExpiresAt) {
		return nil, false
	}
	raw, err := base64.StdEncoding.DecodeString(doc.Result)
	if err != nil {
		s.logger.Warn("corrupt cached result", "fingerprint", fp, "error", err)
		return nil, false
	}
	return raw, true
}

// Close disconnects the underlying Mongo client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
