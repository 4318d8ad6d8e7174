package database

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tripwire/repositories"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	Up          func(*mongo.Database) error
}

// migrationRecord tracks applied migrations
type migrationRecord struct {
	Version   int       `bson:"version"`
	AppliedAt time.Time `bson:"appliedAt"`
}

// migrations contains all database migrations. Index definitions live on
// the repositories so they cannot drift from the query code.
var migrations = []Migration{
	{
		Version:     1,
		Description: "Create trip_members indexes",
		Up: func(db *mongo.Database) error {
			return withMigrationContext(func(ctx context.Context) error {
				return repositories.NewRecipientRepository(db).CreateIndexes(ctx)
			})
		},
	},
	{
		Version:     2,
		Description: "Create delivery_attempts indexes",
		Up: func(db *mongo.Database) error {
			return withMigrationContext(func(ctx context.Context) error {
				return repositories.NewDeliveryLogRepository(db).CreateIndexes(ctx)
			})
		},
	},
	{
		Version:     3,
		Description: "Create bounce_records indexes",
		Up: func(db *mongo.Database) error {
			return withMigrationContext(func(ctx context.Context) error {
				return repositories.NewBounceRepository(db).CreateIndexes(ctx)
			})
		},
	},
	{
		Version:     4,
		Description: "Create badge_counters indexes",
		Up: func(db *mongo.Database) error {
			return withMigrationContext(func(ctx context.Context) error {
				return repositories.NewBadgeRepository(db).CreateIndexes(ctx)
			})
		},
	},
}

// RunMigrations executes all pending migrations
func RunMigrations(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	migrationsCol := db.Collection("migrations")

	currentVersion := getCurrentMigrationVersion(ctx, migrationsCol)
	logrus.Infof("Current migration version: %d", currentVersion)

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		logrus.Infof("Running migration %d: %s", migration.Version, migration.Description)

		if err := migration.Up(db); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}

		_, err := migrationsCol.InsertOne(ctx, migrationRecord{
			Version:   migration.Version,
			AppliedAt: time.Now(),
		})
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		logrus.Infof("Migration %d completed", migration.Version)
	}

	return nil
}

// getCurrentMigrationVersion returns the current migration version
func getCurrentMigrationVersion(ctx context.Context, col *mongo.Collection) int {
	opts := options.FindOne().SetSort(bson.D{{Key: "version", Value: -1}})
	var record migrationRecord
	err := col.FindOne(ctx, bson.D{}, opts).Decode(&record)
	if err != nil {
		return 0
	}
	return record.Version
}

func withMigrationContext(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return fn(ctx)
}
