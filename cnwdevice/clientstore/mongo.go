package clientstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const defaultMongoCollection = "cnw_device_storage"

// MongoOption configures a MongoStore.
type MongoOption func(*MongoStore)

// WithCollectionName sets the MongoDB collection name. Default: "cnw_device_storage".
func WithCollectionName(name string) MongoOption {
	return func(s *MongoStore) {
		s.collectionName = name
	}
}

// WithMongoNamespace scopes all keys to namespace. Default: "default".
func WithMongoNamespace(ns string) MongoOption {
	return func(s *MongoStore) {
		s.namespace = ns
	}
}

// MongoStore implements Store using MongoDB.
type MongoStore struct {
	collection     *mongo.Collection
	collectionName string
	namespace      string
}

type mongoEntry struct {
	Namespace string    `bson:"namespace"`
	Key       string    `bson:"key"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// NewMongoStore creates a MongoDB-backed store.
// It creates the necessary indexes on initialization.
func NewMongoStore(ctx context.Context, db *mongo.Database, opts ...MongoOption) (*MongoStore, error) {
	s := &MongoStore{
		collectionName: defaultMongoCollection,
		namespace:      defaultNamespace,
	}
	for _, opt := range opts {
		opt(s)
	}
	if !validName.MatchString(s.collectionName) {
		return nil, fmt.Errorf("invalid collection name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", s.collectionName)
	}
	s.collection = db.Collection(s.collectionName)

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{
			{Key: "namespace", Value: 1},
			{Key: "key", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (s *MongoStore) filter(key string) bson.M {
	return bson.M{"namespace": s.namespace, "key": key}
}

func (s *MongoStore) Get(ctx context.Context, key string) (string, error) {
	var entry mongoEntry
	err := s.collection.FindOne(ctx, s.filter(key)).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get %q: %w", key, err)
	}
	return entry.Value, nil
}

func (s *MongoStore) Set(ctx context.Context, key, value string) error {
	update := bson.M{
		"$set": bson.M{
			"value":      value,
			"updated_at": time.Now(),
		},
	}
	_, err := s.collection.UpdateOne(ctx, s.filter(key), update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Delete(ctx context.Context, key string) error {
	if _, err := s.collection.DeleteOne(ctx, s.filter(key)); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

func (s *MongoStore) Close(_ context.Context) error {
	return nil // user manages the mongo.Database lifecycle
}
