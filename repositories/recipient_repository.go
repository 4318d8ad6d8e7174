// repositories/recipient_repository.go
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

// RecipientRepository reads trip membership rows with their embedded
// delivery preferences. The dispatcher reads these fresh on every call;
// preference writes here are the self-healing paths (SMS downgrade, stale
// token removal) plus the user-facing preference update.
type RecipientRepository struct {
	db                *mongo.Database
	membersCollection *mongo.Collection
}

func NewRecipientRepository(db *mongo.Database) *RecipientRepository {
	return &RecipientRepository{
		db:                db,
		membersCollection: db.Collection("trip_members"),
	}
}

func (rr *RecipientRepository) GetTripRecipients(ctx context.Context, tripID string) ([]models.Recipient, error) {
	cursor, err := rr.membersCollection.Find(ctx, bson.M{"tripId": tripID})
	if err != nil {
		return nil, fmt.Errorf("failed to get trip recipients: %w", err)
	}
	defer cursor.Close(ctx)

	var recipients []models.Recipient
	if err := cursor.All(ctx, &recipients); err != nil {
		return nil, fmt.Errorf("failed to decode trip recipients: %w", err)
	}

	return recipients, nil
}

func (rr *RecipientRepository) GetRecipient(ctx context.Context, tripID, userID string) (*models.Recipient, error) {
	var recipient models.Recipient
	err := rr.membersCollection.FindOne(ctx, bson.M{"tripId": tripID, "userId": userID}).Decode(&recipient)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("recipient not found")
		}
		return nil, fmt.Errorf("failed to get recipient: %w", err)
	}

	return &recipient, nil
}

// DisableSMSPreference persistently turns off SMS for a user across all
// trips. Called when the entitlement behind the preference is gone, so the
// same message is not silently dropped on every future event.
func (rr *RecipientRepository) DisableSMSPreference(ctx context.Context, userID string) error {
	filter := bson.M{"userId": userID}
	update := bson.M{
		"$set": bson.M{
			"channelsEnabled.sms": false,
			"updatedAt":           time.Now(),
		},
	}

	_, err := rr.membersCollection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to disable SMS preference: %w", err)
	}

	return nil
}

// RemovePushToken drops a stale device token from every membership row for
// the user after the push gateway reports it unregistered.
func (rr *RecipientRepository) RemovePushToken(ctx context.Context, userID, token string) error {
	filter := bson.M{"userId": userID}
	update := bson.M{
		"$pull": bson.M{
			"pushTokens": bson.M{"token": token},
		},
		"$set": bson.M{"updatedAt": time.Now()},
	}

	_, err := rr.membersCollection.UpdateMany(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove push token: %w", err)
	}

	return nil
}

// UpdatePreferences applies a user's preference changes to one membership.
func (rr *RecipientRepository) UpdatePreferences(ctx context.Context, tripID, userID string, req models.UpdatePreferencesRequest) error {
	set := bson.M{"updatedAt": time.Now()}

	if req.ChannelsEnabled != nil {
		set["channelsEnabled"] = *req.ChannelsEnabled
	}
	if req.CategoryPrefs != nil {
		set["categoryPrefs"] = req.CategoryPrefs
	}
	if req.QuietHours != nil {
		set["quietHours"] = *req.QuietHours
	}
	if req.Timezone != "" {
		set["timezone"] = req.Timezone
	}

	filter := bson.M{"tripId": tripID, "userId": userID}
	result, err := rr.membersCollection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func (rr *RecipientRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "tripId", Value: 1},
				{Key: "userId", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "userId", Value: 1}},
		},
	}

	_, err := rr.membersCollection.Indexes().CreateMany(ctx, indexes)
	return err
}
