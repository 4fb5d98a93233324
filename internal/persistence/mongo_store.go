package persistence

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/petrijr/botflow/pkg/api"
)

// MongoFlowStore is a FlowStore backed by a MongoDB collection with one
// document per bot.
type MongoFlowStore struct {
	coll *mongo.Collection
}

var _ FlowStore = (*MongoFlowStore)(nil)

// NewMongoFlowStore creates a Mongo-backed flow store.
// dbName defaults to "botflow" if empty, collName defaults to "flows".
func NewMongoFlowStore(client *mongo.Client, dbName, collName string) *MongoFlowStore {
	if dbName == "" {
		dbName = "botflow"
	}
	if collName == "" {
		collName = "flows"
	}
	return &MongoFlowStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoFlowDoc struct {
	BotID     string    `bson:"_id"`
	Graph     []byte    `bson:"graph"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (s *MongoFlowStore) SaveFlow(ctx context.Context, botID string, g api.FlowGraph) error {
	data, err := prepareSave(botID, g)
	if err != nil {
		return err
	}
	doc := mongoFlowDoc{BotID: botID, Graph: data, UpdatedAt: time.Now().UTC()}
	_, err = s.coll.ReplaceOne(ctx, bson.M{"_id": botID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (s *MongoFlowStore) LoadFlow(ctx context.Context, botID string) (api.FlowGraph, error) {
	var doc mongoFlowDoc
	if err := s.coll.FindOne(ctx, bson.M{"_id": botID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return api.FlowGraph{}, api.ErrFlowNotFound
		}
		return api.FlowGraph{}, err
	}
	return DecodeFlow(doc.Graph)
}

func (s *MongoFlowStore) DeleteFlow(ctx context.Context, botID string) error {
	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": botID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return api.ErrFlowNotFound
	}
	return nil
}

func (s *MongoFlowStore) ListFlows(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	ids := []string{}
	for cur.Next(ctx) {
		var doc struct {
			BotID string `bson:"_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.BotID)
	}
	return ids, cur.Err()
}
