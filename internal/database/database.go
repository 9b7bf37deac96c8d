package database

import (
	"context"
	"log"
	"time"

	"go-lead-import/internal/config"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

type MongoDB struct {
	DB *mongo.Database
}

// NewDatabase creates a new MongoDB connection with lifecycle management
func NewDatabase(lc fx.Lifecycle, cfg *config.Config) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	log.Println("Connected to MongoDB!")

	db := client.Database(cfg.DBName)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return ensureIndexes(ctx, db)
		},
		OnStop: func(ctx context.Context) error {
			log.Println("Disconnecting from MongoDB...")
			return client.Disconnect(ctx)
		},
	})

	return &MongoDB{DB: db}, nil
}

// ensureIndexes creates the indexes the import engine relies on. The
// (import_job_id, row_number) unique index is what makes chunk re-processing
// an upsert instead of a duplicate insert.
func ensureIndexes(ctx context.Context, db *mongo.Database) error {
	rows := db.Collection("import_rows")
	_, err := rows.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "import_job_id", Value: 1}, {Key: "row_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "import_job_id", Value: 1}, {Key: "status", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	leads := db.Collection("leads")
	_, err = leads.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "fields.email", Value: 1}},
	})
	return err
}
