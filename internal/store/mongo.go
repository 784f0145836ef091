package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adi-253/parley/backend/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// messageDocument is the shape of a message in the messages collection.
// BSON dates only carry milliseconds, so ordering uses the nanosecond ts field.
type messageDocument struct {
	ID        primitive.ObjectID `bson:"_id"`
	Sender    string             `bson:"sender"`
	Body      string             `bson:"message"`
	TS        int64              `bson:"ts"`
	CreatedAt primitive.DateTime `bson:"createdAt"`
}

// MongoStore persists the history log in a MongoDB collection.
type MongoStore struct {
	collection *mongo.Collection
	clock      *Clock
}

// NewMongoStore ensures the timestamp index exists on the collection and
// advances the clock past the newest stored document.
func NewMongoStore(ctx context.Context, collection *mongo.Collection) (*MongoStore, error) {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ts", Value: -1}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ts index: %w", err)
	}

	s := &MongoStore{collection: collection, clock: NewClock()}
	latest, err := s.Recent(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to read latest message: %w", err)
	}
	if len(latest) == 1 {
		s.clock.Observe(latest[0].Timestamp)
	}
	return s, nil
}

// Append inserts a document.
func (s *MongoStore) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	ts := s.clock.Next()
	doc := messageDocument{
		ID:        primitive.NewObjectID(),
		Sender:    msg.Sender,
		Body:      msg.Body,
		TS:        ts.UnixNano(),
		CreatedAt: primitive.NewDateTimeFromTime(ts),
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return models.Message{}, fmt.Errorf("insert message: %w", err)
	}

	msg.ID = doc.ID.Hex()
	msg.Timestamp = ts
	return msg, nil
}

// Recent returns up to limit documents sorted by ts descending.
func (s *MongoStore) Recent(ctx context.Context, limit int) ([]models.Message, error) {
	messages := make([]models.Message, 0)
	if limit <= 0 {
		return messages, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "ts", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := s.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find messages: %w", err)
	}

	var docs []messageDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}

	for _, doc := range docs {
		messages = append(messages, models.Message{
			ID:        doc.ID.Hex(),
			Sender:    doc.Sender,
			Body:      doc.Body,
			Timestamp: time.Unix(0, doc.TS).UTC(),
		})
	}
	return messages, nil
}

// Empty looks for any single document in the collection.
func (s *MongoStore) Empty(ctx context.Context) (bool, error) {
	err := s.collection.FindOne(ctx, bson.D{}).Err()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("find message: %w", err)
	}
	return false, nil
}
