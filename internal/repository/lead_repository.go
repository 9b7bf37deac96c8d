package repository

import (
	"context"
	"time"

	"go-lead-import/internal/database"
	"go-lead-import/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type LeadRepository interface {
	Create(ctx context.Context, lead *models.Lead) error
	// FindByFields matches a non-deleted lead whose stored fields equal the
	// given normalized values. Returns nil when nothing matches.
	FindByFields(ctx context.Context, fields map[string]string) (*models.Lead, error)
	SetFields(ctx context.Context, id primitive.ObjectID, fields map[string]string) error
}

type LeadRepositoryImpl struct {
	collection *mongo.Collection
}

func NewLeadRepository(db *database.MongoDB) LeadRepository {
	return &LeadRepositoryImpl{
		collection: db.DB.Collection("leads"),
	}
}

func (r *LeadRepositoryImpl) Create(ctx context.Context, lead *models.Lead) error {
	if lead.ID.IsZero() {
		lead.ID = primitive.NewObjectID()
	}
	now := time.Now()
	lead.CreatedAt = now
	lead.UpdatedAt = now

	_, err := r.collection.InsertOne(ctx, lead)
	return err
}

func (r *LeadRepositoryImpl) FindByFields(ctx context.Context, fields map[string]string) (*models.Lead, error) {
	filter := bson.M{"deleted": false}
	for k, v := range fields {
		filter["fields."+k] = v
	}

	var lead models.Lead
	err := r.collection.FindOne(ctx, filter).Decode(&lead)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lead, nil
}

func (r *LeadRepositoryImpl) SetFields(ctx context.Context, id primitive.ObjectID, fields map[string]string) error {
	set := bson.M{"updated_at": time.Now()}
	for k, v := range fields {
		set["fields."+k] = v
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	return err
}
