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

type ImportRowRepository interface {
	// UpsertChunk inserts rows keyed by (import_job_id, row_number) and
	// returns how many of them were actually inserted, split by status.
	// Matched documents are left untouched: a row the commit stage already
	// claimed must survive a replayed parse chunk unchanged.
	UpsertChunk(ctx context.Context, rows []models.ImportRow) (insertedValid, insertedInvalid int, err error)
	FindValidBatch(ctx context.Context, jobID primitive.ObjectID, limit int64) ([]models.ImportRow, error)
	CountByStatus(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus) (int64, error)
	// Claim transitions the row from valid to the given status; reports
	// whether this caller won the transition.
	Claim(ctx context.Context, rowID primitive.ObjectID, to models.RowStatus) (bool, error)
	FindByStatus(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus) ([]models.ImportRow, error)
	// NormalizedValues returns the normalized data of rows in the given
	// status, projected down to the listed fields.
	NormalizedValues(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus, fields []string) ([]map[string]string, error)
}

type ImportRowRepositoryImpl struct {
	collection *mongo.Collection
}

func NewImportRowRepository(db *database.MongoDB) ImportRowRepository {
	return &ImportRowRepositoryImpl{
		collection: db.DB.Collection("import_rows"),
	}
}

func (r *ImportRowRepositoryImpl) UpsertChunk(ctx context.Context, rows []models.ImportRow) (int, int, error) {
	if len(rows) == 0 {
		return 0, 0, nil
	}

	ops := make([]mongo.WriteModel, 0, len(rows))
	now := time.Now()
	for i := range rows {
		row := rows[i]
		if row.ID.IsZero() {
			row.ID = primitive.NewObjectID()
		}
		row.CreatedAt = now
		row.UpdatedAt = now

		ops = append(ops, mongo.NewUpdateOneModel().
			SetFilter(bson.M{
				"import_job_id": row.ImportJobID,
				"row_number":    row.RowNumber,
			}).
			SetUpdate(bson.M{"$setOnInsert": row}).
			SetUpsert(true))
	}

	res, err := r.collection.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, 0, err
	}

	// Only freshly inserted rows count towards the job counters; matched
	// rows were already counted by the invocation that created them.
	var insertedValid, insertedInvalid int
	for idx := range res.UpsertedIDs {
		if rows[idx].Status == models.RowStatusValid {
			insertedValid++
		} else {
			insertedInvalid++
		}
	}
	return insertedValid, insertedInvalid, nil
}

func (r *ImportRowRepositoryImpl) FindValidBatch(ctx context.Context, jobID primitive.ObjectID, limit int64) ([]models.ImportRow, error) {
	opts := options.Find().
		SetSort(bson.M{"row_number": 1}).
		SetLimit(limit)

	cursor, err := r.collection.Find(ctx, bson.M{
		"import_job_id": jobID,
		"status":        models.RowStatusValid,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.ImportRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ImportRowRepositoryImpl) CountByStatus(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus) (int64, error) {
	return r.collection.CountDocuments(ctx, bson.M{
		"import_job_id": jobID,
		"status":        status,
	})
}

func (r *ImportRowRepositoryImpl) Claim(ctx context.Context, rowID primitive.ObjectID, to models.RowStatus) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": rowID, "status": models.RowStatusValid},
		bson.M{"$set": bson.M{
			"status":     to,
			"updated_at": time.Now(),
		}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *ImportRowRepositoryImpl) FindByStatus(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus) ([]models.ImportRow, error) {
	opts := options.Find().SetSort(bson.M{"row_number": 1})

	cursor, err := r.collection.Find(ctx, bson.M{
		"import_job_id": jobID,
		"status":        status,
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []models.ImportRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *ImportRowRepositoryImpl) NormalizedValues(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus, fields []string) ([]map[string]string, error) {
	projection := bson.M{"_id": 0}
	for _, f := range fields {
		projection["normalized_data."+f] = 1
	}

	cursor, err := r.collection.Find(ctx, bson.M{
		"import_job_id": jobID,
		"status":        status,
	}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []struct {
		NormalizedData map[string]string `bson:"normalized_data"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]map[string]string, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.NormalizedData)
	}
	return out, nil
}
