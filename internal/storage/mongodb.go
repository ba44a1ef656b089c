package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func init() {
	Register("mongodb", func(ctx context.Context, params Params) (Store, error) {
		return NewMongoStore(ctx,
			params.String("uri", "mongodb://localhost:27017"),
			params.String("database", "haste"),
			params.String("collection", "documents"),
		)
	})
}

// MongoStore implements Store using MongoDB. The server's TTL monitor
// removes expired documents in the background; reads still check expiry
// because the monitor only runs once a minute.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoStore connects to MongoDB and ensures the collection indexes
func NewMongoStore(ctx context.Context, uri, dbName, collection string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	store := &MongoStore{
		client:     client,
		collection: client.Database(dbName).Collection(collection),
	}
	if err := store.createIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return store, nil
}

func (m *MongoStore) createIndexes(ctx context.Context) error {
	// Documents without expires_at are never touched by the TTL monitor.
	ttlIndex := mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	}
	createdAtIndex := mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		ttlIndex,
		createdAtIndex,
	})
	return err
}

// Set inserts a document; the _id unique index rejects duplicates
func (m *MongoStore) Set(ctx context.Context, doc *Document) error {
	doc.normalize()
	if _, err := m.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrKeyExists
		}
		return err
	}
	return nil
}

// Get retrieves a document by its key
func (m *MongoStore) Get(ctx context.Context, key string, skipExpire bool) (*Document, error) {
	var doc Document
	if err := m.collection.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	doc.Size = int64(len(doc.Content))
	return expireOnRead(ctx, m, &doc, skipExpire)
}

// Delete removes a document from MongoDB
func (m *MongoStore) Delete(ctx context.Context, key string) error {
	res, err := m.collection.DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRecent queries the created_at index, excluding expired documents
func (m *MongoStore) ListRecent(ctx context.Context, limit int) ([]Summary, error) {
	filter := bson.M{"$or": bson.A{
		bson.M{"expires_at": bson.M{"$exists": false}},
		bson.M{"expires_at": bson.M{"$gt": time.Now()}},
	}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"content": 0})

	cur, err := m.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	out := make([]Summary, 0, limit)
	for cur.Next(ctx) {
		var doc Document
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, doc.Summary())
	}
	return out, cur.Err()
}

// DeleteExpired removes expired documents ahead of the TTL monitor
func (m *MongoStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": before}})
	if err != nil {
		return 0, err
	}
	return int(res.DeletedCount), nil
}

// Close closes the MongoDB connection
func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return m.client.Disconnect(ctx)
}
