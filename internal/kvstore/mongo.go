package kvstore

import (
	"context"
	"errors"
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoEntry struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

// Mongo keeps one document per key: {_id: key, value: "<json>"}.
type Mongo struct {
	col *mongo.Collection
}

func NewMongo(col *mongo.Collection) *Mongo {
	return &Mongo{col: col}
}

func (m *Mongo) Get(ctx context.Context, key string) (string, bool, error) {
	var e mongoEntry
	err := m.col.FindOne(ctx, bson.M{"_id": key}).Decode(&e)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return "", false, nil
		}
		return "", false, err
	}
	return e.Value, true, nil
}

func (m *Mongo) Set(ctx context.Context, key, value string) error {
	opts := options.Update().SetUpsert(true)
	_, err := m.col.UpdateOne(ctx, bson.M{"_id": key}, bson.M{"$set": bson.M{"value": value}}, opts)
	return err
}

func (m *Mongo) Remove(ctx context.Context, key string) error {
	_, err := m.col.DeleteOne(ctx, bson.M{"_id": key})
	return err
}

func (m *Mongo) Keys(ctx context.Context, prefix string) ([]string, error) {
	filter := bson.M{}
	if prefix != "" {
		filter = bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)}}
	}
	cur, err := m.col.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
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
	if err := cur.Err(); err != nil {
		return nil, err
	}
	return filterSorted(keys, prefix), nil
}
