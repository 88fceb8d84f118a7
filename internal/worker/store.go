package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store persists Job state for status/results-by-id lookups (spec §6.5's
// "worker job state"). MemoryStore lasts only as long as the process;
// MongoStore keeps status across a worker pool restart but not Results.
type Store interface {
	Save(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, bool, error)
	ListByStatus(ctx context.Context, status Status) ([]*Job, error)
}

// MemoryStore is a process-local Store, the default for a single-node
// deployment, mirroring cache.MemoryStore's mutex-guarded map shape.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

func (s *MemoryStore) Save(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *job
	s.jobs[job.ID] = &clone
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Job, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, false, nil
	}
	clone := *job
	return &clone, true, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status) ([]*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Job
	for _, job := range s.jobs {
		if job.Status == status {
			clone := *job
			out = append(out, &clone)
		}
	}
	return out, nil
}

// mongoJobDoc is the persisted shape of a Job, grounded on cache.mongoDoc's
// flat-document idiom (URLs stored as a nested BSON array rather than an
// opaque blob, since jobs are queried by status rather than only by id).
// Results are not part of the document; see MongoStore.
type mongoJobDoc struct {
	ID          string    `bson:"_id"`
	Kind        string    `bson:"kind"`
	URLs        []string  `bson:"urls"`
	Status      string    `bson:"status"`
	Attempts    int       `bson:"attempts"`
	MaxAttempts int       `bson:"max_attempts"`
	ReadyAt     time.Time `bson:"ready_at"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
	Err         string    `bson:"error,omitempty"`
}

// MongoStore is a Store backed by a MongoDB collection, for deployments
// that run more than one worker pool process against shared job state.
// Results are intentionally not persisted here (they can be large and
// are read far less often than status); a deployment needing durable
// results would pair this with the Cache Port keyed by job id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *slog.Logger
}

// NewMongoStore connects to uri and prepares collection in database.
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
		Keys: bson.D{{Key: "status", Value: 1}},
	})
	if err != nil {
		return nil, fmt.Errorf("mongodb index: %w", err)
	}

	return &MongoStore{
		client:     client,
		collection: coll,
		logger:     logger.With("component", "worker_store_mongo"),
	}, nil
}

func (s *MongoStore) Save(ctx context.Context, job *Job) error {
	doc := mongoJobDoc{
		ID: job.ID, Kind: string(job.Kind), URLs: job.URLs, Status: string(job.Status),
		Attempts: job.Attempts, MaxAttempts: job.MaxAttempts, ReadyAt: job.ReadyAt,
		CreatedAt: job.CreatedAt, UpdatedAt: job.UpdatedAt, Err: job.Err,
	}
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": job.ID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mongodb job save: %w", err)
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (*Job, bool, error) {
	var doc mongoJobDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("mongodb job get: %w", err)
	}
	return fromDoc(doc), true, nil
}

func (s *MongoStore) ListByStatus(ctx context.Context, status Status) ([]*Job, error) {
	cur, err := s.collection.Find(ctx, bson.M{"status": string(status)})
	if err != nil {
		return nil, fmt.Errorf("mongodb job list: %w", err)
	}
	defer cur.Close(ctx)

	var jobs []*Job
	for cur.Next(ctx) {
		var doc mongoJobDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("mongodb job decode: %w", err)
		}
		jobs = append(jobs, fromDoc(doc))
	}
	return jobs, cur.Err()
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func fromDoc(doc mongoJobDoc) *Job {
	return &Job{
		ID: doc.ID, Kind: Kind(doc.Kind), URLs: doc.URLs, Status: Status(doc.Status),
		Attempts: doc.Attempts, MaxAttempts: doc.MaxAttempts, ReadyAt: doc.ReadyAt,
		CreatedAt: doc.CreatedAt, UpdatedAt: doc.UpdatedAt, Err: doc.Err,
	}
}
