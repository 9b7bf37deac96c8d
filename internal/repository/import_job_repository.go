package repository

import (
	"context"
	"time"

	"go-lead-import/internal/database"
	"go-lead-import/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CounterDeltas are added to the job's progress counters with $inc so
// overlapping worker invocations never lose counts.
type CounterDeltas struct {
	Processed int
	Valid     int
	Invalid   int
	Imported  int
	Skipped   int
}

type ImportJobRepository interface {
	Create(ctx context.Context, job *models.ImportJob) error
	Get(ctx context.Context, id string) (*models.ImportJob, error)
	FindByOwner(ctx context.Context, ownerID string, limit int64) ([]models.ImportJob, error)
	FindRecent(ctx context.Context, limit int64) ([]models.ImportJob, error)
	SetFields(ctx context.Context, id string, fields bson.M) error
	// TransitionStatus updates the status only when the current status is one
	// of from; reports whether the update won.
	TransitionStatus(ctx context.Context, id string, from []models.ImportStatus, to models.ImportStatus) (bool, error)
	UpdateStatus(ctx context.Context, id string, status models.ImportStatus) error
	Fail(ctx context.Context, id string, message string) error
	IncrementCounters(ctx context.Context, id string, deltas CounterDeltas) error
	// AdvanceChunk raises the chunk pointer to chunk with $max, so a replayed
	// chunk never moves it backwards or counts twice.
	AdvanceChunk(ctx context.Context, id string, chunk int) error
	// NextAssignCursor atomically advances the round-robin cursor and returns
	// the position before the increment.
	NextAssignCursor(ctx context.Context, id string) (int64, error)
	FindStale(ctx context.Context, statuses []models.ImportStatus, olderThan time.Time) ([]models.ImportJob, error)
}

type ImportJobRepositoryImpl struct {
	collection *mongo.Collection
}

func NewImportJobRepository(db *database.MongoDB) ImportJobRepository {
	return &ImportJobRepositoryImpl{
		collection: db.DB.Collection("import_jobs"),
	}
}

func (r *ImportJobRepositoryImpl) Create(ctx context.Context, job *models.ImportJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = models.ImportStatusPending
	}

	_, err := r.collection.InsertOne(ctx, job)
	return err
}

func (r *ImportJobRepositoryImpl) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var job models.ImportJob
	if err := r.collection.FindOne(ctx, bson.M{"_id": objID}).Decode(&job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *ImportJobRepositoryImpl) FindByOwner(ctx context.Context, ownerID string, limit int64) ([]models.ImportJob, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{"owner_id": ownerID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []models.ImportJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *ImportJobRepositoryImpl) FindRecent(ctx context.Context, limit int64) ([]models.ImportJob, error) {
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []models.ImportJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *ImportJobRepositoryImpl) SetFields(ctx context.Context, id string, fields bson.M) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	fields["updated_at"] = time.Now()
	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": fields})
	return err
}

func (r *ImportJobRepositoryImpl) TransitionStatus(ctx context.Context, id string, from []models.ImportStatus, to models.ImportStatus) (bool, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, err
	}

	set := bson.M{
		"status":     to,
		"updated_at": time.Now(),
	}
	if to == models.ImportStatusQueued {
		set["started_at"] = time.Now()
	}
	if to.Terminal() {
		set["completed_at"] = time.Now()
	}

	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": objID, "status": bson.M{"$in": from}},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	// MatchedCount, not ModifiedCount: a parsing->parsing retry sets the
	// same status and may change nothing, but it still won the filter.
	return res.MatchedCount == 1, nil
}

func (r *ImportJobRepositoryImpl) UpdateStatus(ctx context.Context, id string, status models.ImportStatus) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	set := bson.M{
		"status":     status,
		"updated_at": time.Now(),
	}
	if status.Terminal() {
		set["completed_at"] = time.Now()
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": set})
	return err
}

func (r *ImportJobRepositoryImpl) Fail(ctx context.Context, id string, message string) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{"$set": bson.M{
		"status":        models.ImportStatusFailed,
		"error_message": message,
		"completed_at":  time.Now(),
		"updated_at":    time.Now(),
	}})
	return err
}

func (r *ImportJobRepositoryImpl) IncrementCounters(ctx context.Context, id string, deltas CounterDeltas) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	inc := bson.M{}
	if deltas.Processed != 0 {
		inc["processed_rows"] = deltas.Processed
	}
	if deltas.Valid != 0 {
		inc["valid_rows"] = deltas.Valid
	}
	if deltas.Invalid != 0 {
		inc["invalid_rows"] = deltas.Invalid
	}
	if deltas.Imported != 0 {
		inc["imported_rows"] = deltas.Imported
	}
	if deltas.Skipped != 0 {
		inc["skipped_rows"] = deltas.Skipped
	}
	if len(inc) == 0 {
		return nil
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{
		"$inc": inc,
		"$set": bson.M{"updated_at": time.Now()},
	})
	return err
}

func (r *ImportJobRepositoryImpl) AdvanceChunk(ctx context.Context, id string, chunk int) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.UpdateOne(ctx, bson.M{"_id": objID}, bson.M{
		"$max": bson.M{"current_chunk": chunk},
		"$set": bson.M{"updated_at": time.Now()},
	})
	return err
}

func (r *ImportJobRepositoryImpl) NextAssignCursor(ctx context.Context, id string) (int64, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return 0, err
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)
	var job models.ImportJob
	err = r.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": objID},
		bson.M{"$inc": bson.M{"assign_cursor": 1}},
		opts,
	).Decode(&job)
	if err != nil {
		return 0, err
	}
	return job.AssignCursor, nil
}

func (r *ImportJobRepositoryImpl) FindStale(ctx context.Context, statuses []models.ImportStatus, olderThan time.Time) ([]models.ImportJob, error) {
	cursor, err := r.collection.Find(ctx, bson.M{
		"status":     bson.M{"$in": statuses},
		"updated_at": bson.M{"$lt": olderThan},
	})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []models.ImportJob
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
