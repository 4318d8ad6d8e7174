// repositories/delivery_log_repository.go
package repositories

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tripwire/models"
)

// DeliveryLogRepository persists the append-only delivery attempt log.
// Rows are never updated; support and analytics read them back by event or
// by user, and the retention worker prunes them past the retention window.
type DeliveryLogRepository struct {
	db                 *mongo.Database
	attemptsCollection *mongo.Collection
}

func NewDeliveryLogRepository(db *mongo.Database) *DeliveryLogRepository {
	return &DeliveryLogRepository{
		db:                 db,
		attemptsCollection: db.Collection("delivery_attempts"),
	}
}

func (dr *DeliveryLogRepository) Append(ctx context.Context, attempt *models.DeliveryAttempt) error {
	if attempt.Timestamp.IsZero() {
		attempt.Timestamp = time.Now()
	}

	_, err := dr.attemptsCollection.InsertOne(ctx, attempt)
	if err != nil {
		return fmt.Errorf("failed to append delivery attempt: %w", err)
	}

	return nil
}

func (dr *DeliveryLogRepository) AppendMany(ctx context.Context, attempts []models.DeliveryAttempt) error {
	if len(attempts) == 0 {
		return nil
	}

	docs := make([]interface{}, len(attempts))
	for i := range attempts {
		if attempts[i].Timestamp.IsZero() {
			attempts[i].Timestamp = time.Now()
		}
		docs[i] = attempts[i]
	}

	_, err := dr.attemptsCollection.InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("failed to append delivery attempts: %w", err)
	}

	return nil
}

// GetByEventID returns every attempt row for one notification event in
// chronological order.
func (dr *DeliveryLogRepository) GetByEventID(ctx context.Context, eventID string) ([]models.DeliveryAttempt, error) {
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := dr.attemptsCollection.Find(ctx, bson.M{"notificationEventId": eventID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get delivery attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var attempts []models.DeliveryAttempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode delivery attempts: %w", err)
	}

	return attempts, nil
}

// GetUserAttempts returns recent attempts for one user, newest first.
func (dr *DeliveryLogRepository) GetUserAttempts(ctx context.Context, userID string, page, pageSize int) ([]models.DeliveryAttempt, error) {
	skip := int64((page - 1) * pageSize)
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetSkip(skip).
		SetLimit(int64(pageSize))

	cursor, err := dr.attemptsCollection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to get user delivery attempts: %w", err)
	}
	defer cursor.Close(ctx)

	var attempts []models.DeliveryAttempt
	if err := cursor.All(ctx, &attempts); err != nil {
		return nil, fmt.Errorf("failed to decode user delivery attempts: %w", err)
	}

	return attempts, nil
}

// CountByOutcome aggregates outcome totals for one event, for support
// tooling.
func (dr *DeliveryLogRepository) CountByOutcome(ctx context.Context, eventID string) (map[string]int64, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"notificationEventId": eventID}},
		{"$group": bson.M{
			"_id":   "$outcome",
			"count": bson.M{"$sum": 1},
		}},
	}

	cursor, err := dr.attemptsCollection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate delivery outcomes: %w", err)
	}
	defer cursor.Close(ctx)

	counts := make(map[string]int64)
	for cursor.Next(ctx) {
		var row struct {
			Outcome string `bson:"_id"`
			Count   int64  `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("failed to decode outcome count: %w", err)
		}
		counts[row.Outcome] = row.Count
	}

	return counts, cursor.Err()
}

// DeleteOlderThan prunes log rows past the retention window and returns
// the number of rows removed.
func (dr *DeliveryLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := dr.attemptsCollection.DeleteMany(ctx, bson.M{
		"timestamp": bson.M{"$lt": cutoff},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete old delivery attempts: %w", err)
	}
	return result.DeletedCount, nil
}

func (dr *DeliveryLogRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "notificationEventId", Value: 1},
				{Key: "timestamp", Value: 1},
			},
		},
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "timestamp", Value: -1},
			},
		},
	}

	_, err := dr.attemptsCollection.Indexes().CreateMany(ctx, indexes)
	return err
}
