// repositories/badge_repository.go
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

// BadgeRepository maintains per-user, per-trip unread counters. Increments
// go through a single FindOneAndUpdate with $inc so that concurrent
// dispatches for the same (user, trip) never lose updates; a separate read
// followed by a write would.
type BadgeRepository struct {
	db               *mongo.Database
	badgesCollection *mongo.Collection
}

func NewBadgeRepository(db *mongo.Database) *BadgeRepository {
	return &BadgeRepository{
		db:               db,
		badgesCollection: db.Collection("badge_counters"),
	}
}

// Increment atomically adds delta to the counter and returns the new value.
// The document is created on first use.
func (br *BadgeRepository) Increment(ctx context.Context, userID, tripID, eventID string, delta int) (int, error) {
	filter := bson.M{"userId": userID, "tripId": tripID}

	set := bson.M{"updatedAt": time.Now()}
	if eventID != "" {
		set["eventId"] = eventID
	}

	update := bson.M{
		"$inc": bson.M{"count": delta},
		"$set": set,
		"$setOnInsert": bson.M{
			"userId": userID,
			"tripId": tripID,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var badge models.BadgeCounter
	err := br.badgesCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&badge)
	if err != nil {
		return 0, fmt.Errorf("failed to increment badge: %w", err)
	}

	return badge.Count, nil
}

func (br *BadgeRepository) Get(ctx context.Context, userID, tripID string) (*models.BadgeCounter, error) {
	var badge models.BadgeCounter
	err := br.badgesCollection.FindOne(ctx, bson.M{"userId": userID, "tripId": tripID}).Decode(&badge)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return &models.BadgeCounter{UserID: userID, TripID: tripID, Count: 0}, nil
		}
		return nil, fmt.Errorf("failed to get badge: %w", err)
	}

	return &badge, nil
}

// GetUserBadges returns every trip counter for one user, read by clients to
// render unread indicators.
func (br *BadgeRepository) GetUserBadges(ctx context.Context, userID string) ([]models.BadgeCounter, error) {
	cursor, err := br.badgesCollection.Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to get user badges: %w", err)
	}
	defer cursor.Close(ctx)

	var badges []models.BadgeCounter
	if err := cursor.All(ctx, &badges); err != nil {
		return nil, fmt.Errorf("failed to decode user badges: %w", err)
	}

	return badges, nil
}

// GetTotalBadge sums a user's counters across trips for the app icon badge.
func (br *BadgeRepository) GetTotalBadge(ctx context.Context, userID string) (int, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"userId": userID}},
		{"$group": bson.M{
			"_id":   nil,
			"total": bson.M{"$sum": "$count"},
		}},
	}

	cursor, err := br.badgesCollection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to sum badges: %w", err)
	}
	defer cursor.Close(ctx)

	var row struct {
		Total int `bson:"total"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&row); err != nil {
			return 0, fmt.Errorf("failed to decode badge total: %w", err)
		}
	}

	return row.Total, cursor.Err()
}

// Reset zeroes the counter for (user, trip). Invoked by the mark-read
// action.
func (br *BadgeRepository) Reset(ctx context.Context, userID, tripID string) error {
	filter := bson.M{"userId": userID, "tripId": tripID}
	update := bson.M{
		"$set": bson.M{
			"count":     0,
			"updatedAt": time.Now(),
		},
	}

	_, err := br.badgesCollection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to reset badge: %w", err)
	}

	return nil
}

func (br *BadgeRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "userId", Value: 1},
				{Key: "tripId", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := br.badgesCollection.Indexes().CreateMany(ctx, indexes)
	return err
}
