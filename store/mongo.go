package store

import (
	"context"
	"regexp"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoEntry struct {
	Key   string `bson:"_id"`
	Value []byte `bson:"value"`
}

// Mongo is a KV stored as one document per key.
type Mongo struct {
	coll *mongo.Collection
}

// NewMongo uses the given collection.
func NewMongo(coll *mongo.Collection) *Mongo {
	return &Mongo{coll: coll}
}

func (m *Mongo) Get(ctx context.Context, key string) ([]byte, error) {
	var e mongoEntry
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return e.Value, nil
}

func (m *Mongo) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": key}, mongoEntry{Key: key, Value: value},
		options.Replace().SetUpsert(true))
	return err
}

func (m *Mongo) Delete(ctx context.Context, key string) error {
	_, err := m.coll.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (m *Mongo) List(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}).SetProjection(bson.M{"_id": 1})
	cur, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var keys []string
	for cur.Next(ctx) {
		var e mongoEntry
		if err := cur.Decode(&e); err != nil {
			return nil, err
		}
		keys = append(keys, e.Key)
	}
	return keys, cur.Err()
}
