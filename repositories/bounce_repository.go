// repositories/bounce_repository.go
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

// BounceRepository stores per-address bounce history. Suppression set here
// is never cleared automatically; only Unsuppress (a manual override)
// removes it.
type BounceRepository struct {
	db                *mongo.Database
	bouncesCollection *mongo.Collection
}

func NewBounceRepository(db *mongo.Database) *BounceRepository {
	return &BounceRepository{
		db:                db,
		bouncesCollection: db.Collection("bounce_records"),
	}
}

func (br *BounceRepository) GetByAddress(ctx context.Context, address string) (*models.BounceRecord, error) {
	var record models.BounceRecord
	err := br.bouncesCollection.FindOne(ctx, bson.M{"address": address}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get bounce record: %w", err)
	}

	return &record, nil
}

// IsSuppressed answers the pre-send gate with a single projected read.
func (br *BounceRepository) IsSuppressed(ctx context.Context, address string) (bool, error) {
	var record struct {
		Suppressed bool `bson:"suppressed"`
	}

	opts := options.FindOne().SetProjection(bson.M{"suppressed": 1})
	err := br.bouncesCollection.FindOne(ctx, bson.M{"address": address}, opts).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return false, nil
		}
		return false, fmt.Errorf("failed to check suppression: %w", err)
	}

	return record.Suppressed, nil
}

// RecordSuppressingBounce upserts the record for a hard bounce or
// complaint, setting suppressed permanently.
func (br *BounceRepository) RecordSuppressingBounce(ctx context.Context, address, bounceType, reason string) error {
	now := time.Now()
	filter := bson.M{"address": address}
	update := bson.M{
		"$inc": bson.M{"bounceCount": 1},
		"$set": bson.M{
			"bounceType":   bounceType,
			"lastBounceAt": now,
			"lastReason":   reason,
			"suppressed":   true,
			"updatedAt":    now,
		},
		"$setOnInsert": bson.M{
			"address":   address,
			"createdAt": now,
		},
	}

	opts := options.Update().SetUpsert(true)
	_, err := br.bouncesCollection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to record bounce: %w", err)
	}

	return nil
}

// RecordSoftBounce upserts a soft bounce and returns the updated count so
// the service can apply its suppression threshold.
func (br *BounceRepository) RecordSoftBounce(ctx context.Context, address, reason string) (int, error) {
	now := time.Now()
	filter := bson.M{"address": address}
	update := bson.M{
		"$inc": bson.M{"bounceCount": 1},
		"$set": bson.M{
			"bounceType":   models.BounceTypeSoft,
			"lastBounceAt": now,
			"lastReason":   reason,
			"updatedAt":    now,
		},
		"$setOnInsert": bson.M{
			"address":   address,
			"createdAt": now,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var record models.BounceRecord
	err := br.bouncesCollection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&record)
	if err != nil {
		return 0, fmt.Errorf("failed to record soft bounce: %w", err)
	}

	return record.BounceCount, nil
}

// Suppress marks an address suppressed without altering its bounce count.
func (br *BounceRepository) Suppress(ctx context.Context, address string) error {
	filter := bson.M{"address": address}
	update := bson.M{
		"$set": bson.M{
			"suppressed": true,
			"updatedAt":  time.Now(),
		},
	}

	_, err := br.bouncesCollection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to suppress address: %w", err)
	}

	return nil
}

// Unsuppress is the manual override that clears a suppression.
func (br *BounceRepository) Unsuppress(ctx context.Context, address string) error {
	filter := bson.M{"address": address}
	update := bson.M{
		"$set": bson.M{
			"suppressed": false,
			"updatedAt":  time.Now(),
		},
	}

	result, err := br.bouncesCollection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to unsuppress address: %w", err)
	}
	if result.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

func (br *BounceRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "address", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "suppressed", Value: 1}},
		},
	}

	_, err := br.bouncesCollection.Indexes().CreateMany(ctx, indexes)
	return err
}
