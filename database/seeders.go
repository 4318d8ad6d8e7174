package database

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"tripwire/models"
)

// Seeder represents a database seeder
type Seeder struct {
	Name        string
	Description string
	Seed        func(*mongo.Database) error
}

// seeders contains all database seeders
var seeders = []Seeder{
	{
		Name:        "demo_trip_members",
		Description: "Create demo trip members for development",
		Seed:        seedDemoTripMembers,
	},
}

// RunSeeders executes all database seeders
func RunSeeders(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seedersCol := db.Collection("seeders")
	count, err := seedersCol.CountDocuments(ctx, bson.M{})
	if err == nil && count > 0 {
		logrus.Info("Seeders already run, skipping")
		return nil
	}

	logrus.Info("Running database seeders")

	for _, seeder := range seeders {
		logrus.Infof("Running seeder: %s", seeder.Name)

		if err := seeder.Seed(db); err != nil {
			logrus.Errorf("Seeder %s failed: %v", seeder.Name, err)
			continue
		}

		_, err := seedersCol.InsertOne(ctx, bson.M{
			"name":      seeder.Name,
			"createdAt": time.Now(),
		})
		if err != nil {
			logrus.Warnf("Failed to record seeder %s: %v", seeder.Name, err)
		}
	}

	logrus.Info("Database seeders completed")
	return nil
}

// seedDemoTripMembers inserts a small trip roster that exercises every
// delivery path: a fully-subscribed organizer, a free-plan member, a
// quiet-hours member in another timezone, and a member with every channel
// disabled.
func seedDemoTripMembers(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	col := db.Collection("trip_members")

	existing, err := col.CountDocuments(ctx, bson.M{"tripId": "trip-demo-lisbon"})
	if err == nil && existing > 0 {
		return nil
	}

	now := time.Now()
	members := []interface{}{
		models.Recipient{
			UserID:   "user-demo-ana",
			TripID:   "trip-demo-lisbon",
			Role:     models.RoleOwner,
			Timezone: "Europe/Lisbon",
			ChannelsEnabled: models.ChannelFlags{
				Push:  true,
				Email: true,
				SMS:   true,
			},
			QuietHours: models.QuietHours{
				Enabled: true,
				Start:   "23:00",
				End:     "07:30",
			},
			PushTokens: []models.PushToken{
				{Token: "demo-fcm-token-ana-iphone", Platform: "ios"},
			},
			VerifiedPhone: "+351912000001",
			VerifiedEmail: "ana@example.com",
			Subscription: models.Subscription{
				Plan: models.PlanPro,
			},
			UpdatedAt: now,
		},
		models.Recipient{
			UserID:   "user-demo-marco",
			TripID:   "trip-demo-lisbon",
			Role:     models.RoleMember,
			Timezone: "America/New_York",
			ChannelsEnabled: models.ChannelFlags{
				Push:  true,
				Email: true,
				SMS:   true,
			},
			CategoryPrefs: map[string]bool{
				models.CategoryChatMessage: false,
			},
			QuietHours: models.QuietHours{
				Enabled: true,
				Start:   "22:00",
				End:     "08:00",
			},
			PushTokens: []models.PushToken{
				{Token: "demo-fcm-token-marco-pixel", Platform: "android"},
				{Token: "demo-fcm-token-marco-web", Platform: "web"},
			},
			VerifiedEmail: "marco@example.com",
			Subscription: models.Subscription{
				Plan: models.PlanFree,
			},
			UpdatedAt: now,
		},
		models.Recipient{
			UserID:   "user-demo-keiko",
			TripID:   "trip-demo-lisbon",
			Role:     models.RoleMember,
			Timezone: "Asia/Tokyo",
			ChannelsEnabled: models.ChannelFlags{
				Push:  true,
				Email: false,
				SMS:   true,
			},
			QuietHours: models.QuietHours{
				Enabled: true,
				Start:   "21:30",
				End:     "09:00",
			},
			PushTokens: []models.PushToken{
				{Token: "demo-fcm-token-keiko-iphone", Platform: "ios"},
			},
			VerifiedPhone: "+819012000003",
			VerifiedEmail: "keiko@example.com",
			Subscription: models.Subscription{
				Plan:      models.PlanPremium,
				ExpiresAt: now.AddDate(0, 6, 0),
			},
			UpdatedAt: now,
		},
		models.Recipient{
			UserID:   "user-demo-sam",
			TripID:   "trip-demo-lisbon",
			Role:     models.RoleMember,
			Timezone: "Europe/Lisbon",
			ChannelsEnabled: models.ChannelFlags{
				Push:  false,
				Email: false,
				SMS:   false,
			},
			VerifiedEmail: "sam@example.com",
			Subscription: models.Subscription{
				Plan: models.PlanFree,
			},
			UpdatedAt: now,
		},
	}

	_, err = col.InsertMany(ctx, members)
	return err
}
