package importer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go-lead-import/internal/models"
	"go-lead-import/internal/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// In-memory repository doubles for worker tests. These mirror the contract
// of the Mongo implementations: conditional transitions, valid-only claims
// and additive counters.

type fakeJobRepo struct {
	jobs map[string]*models.ImportJob
}

func newFakeJobRepo(jobs ...*models.ImportJob) *fakeJobRepo {
	r := &fakeJobRepo{jobs: map[string]*models.ImportJob{}}
	for _, j := range jobs {
		r.jobs[j.ID.Hex()] = j
	}
	return r
}

func (r *fakeJobRepo) Create(ctx context.Context, job *models.ImportJob) error {
	if job.ID.IsZero() {
		job.ID = primitive.NewObjectID()
	}
	r.jobs[job.ID.Hex()] = job
	return nil
}

func (r *fakeJobRepo) Get(ctx context.Context, id string) (*models.ImportJob, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	copied := *job
	return &copied, nil
}

func (r *fakeJobRepo) FindByOwner(ctx context.Context, ownerID string, limit int64) ([]models.ImportJob, error) {
	var out []models.ImportJob
	for _, j := range r.jobs {
		if j.OwnerID == ownerID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *fakeJobRepo) FindRecent(ctx context.Context, limit int64) ([]models.ImportJob, error) {
	var out []models.ImportJob
	for _, j := range r.jobs {
		out = append(out, *j)
	}
	return out, nil
}

func (r *fakeJobRepo) SetFields(ctx context.Context, id string, fields bson.M) error {
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if v, ok := fields["worker_id"].(string); ok {
		job.WorkerID = v
	}
	if v, ok := fields["report_path"].(string); ok {
		job.ReportPath = v
	}
	if v, ok := fields["total_chunks"].(int); ok {
		job.TotalChunks = v
	}
	if v, ok := fields["mapping"].(models.ColumnMapping); ok {
		job.Mapping = &v
	}
	return nil
}

func (r *fakeJobRepo) TransitionStatus(ctx context.Context, id string, from []models.ImportStatus, to models.ImportStatus) (bool, error) {
	job, ok := r.jobs[id]
	if !ok {
		return false, fmt.Errorf("job %s not found", id)
	}
	for _, f := range from {
		if job.Status == f {
			job.Status = to
			now := time.Now()
			if to.Terminal() {
				job.CompletedAt = &now
			}
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeJobRepo) UpdateStatus(ctx context.Context, id string, status models.ImportStatus) error {
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = status
	return nil
}

func (r *fakeJobRepo) Fail(ctx context.Context, id string, message string) error {
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = models.ImportStatusFailed
	job.ErrorMessage = message
	return nil
}

func (r *fakeJobRepo) IncrementCounters(ctx context.Context, id string, deltas repository.CounterDeltas) error {
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.ProcessedRows += deltas.Processed
	job.ValidRows += deltas.Valid
	job.InvalidRows += deltas.Invalid
	job.ImportedRows += deltas.Imported
	job.SkippedRows += deltas.Skipped
	job.UpdatedAt = time.Now()
	return nil
}

func (r *fakeJobRepo) AdvanceChunk(ctx context.Context, id string, chunk int) error {
	job, ok := r.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	if chunk > job.CurrentChunk {
		job.CurrentChunk = chunk
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (r *fakeJobRepo) NextAssignCursor(ctx context.Context, id string) (int64, error) {
	job, ok := r.jobs[id]
	if !ok {
		return 0, fmt.Errorf("job %s not found", id)
	}
	cursor := job.AssignCursor
	job.AssignCursor++
	return cursor, nil
}

func (r *fakeJobRepo) FindStale(ctx context.Context, statuses []models.ImportStatus, olderThan time.Time) ([]models.ImportJob, error) {
	var out []models.ImportJob
	for _, j := range r.jobs {
		for _, s := range statuses {
			if j.Status == s && j.UpdatedAt.Before(olderThan) {
				out = append(out, *j)
			}
		}
	}
	return out, nil
}

type fakeRowRepo struct {
	rows map[string]*models.ImportRow
}

func newFakeRowRepo(rows ...*models.ImportRow) *fakeRowRepo {
	r := &fakeRowRepo{rows: map[string]*models.ImportRow{}}
	for _, row := range rows {
		if row.ID.IsZero() {
			row.ID = primitive.NewObjectID()
		}
		r.rows[row.ID.Hex()] = row
	}
	return r
}

// UpsertChunk mirrors the $setOnInsert upsert: matched rows are left
// untouched, whatever status they moved to since.
func (r *fakeRowRepo) UpsertChunk(ctx context.Context, rows []models.ImportRow) (int, int, error) {
	valid, invalid := 0, 0
	for i := range rows {
		row := rows[i]
		exists := false
		for _, stored := range r.rows {
			if stored.ImportJobID == row.ImportJobID && stored.RowNumber == row.RowNumber {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		if row.ID.IsZero() {
			row.ID = primitive.NewObjectID()
		}
		r.rows[row.ID.Hex()] = &row
		if row.Status == models.RowStatusValid {
			valid++
		} else {
			invalid++
		}
	}
	return valid, invalid, nil
}

func (r *fakeRowRepo) FindValidBatch(ctx context.Context, jobID primitive.ObjectID, limit int64) ([]models.ImportRow, error) {
	batch := r.byStatus(jobID, models.RowStatusValid)
	if int64(len(batch)) > limit {
		batch = batch[:limit]
	}
	return batch, nil
}

func (r *fakeRowRepo) CountByStatus(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus) (int64, error) {
	return int64(len(r.byStatus(jobID, status))), nil
}

func (r *fakeRowRepo) Claim(ctx context.Context, rowID primitive.ObjectID, to models.RowStatus) (bool, error) {
	row, ok := r.rows[rowID.Hex()]
	if !ok || row.Status != models.RowStatusValid {
		return false, nil
	}
	row.Status = to
	return true, nil
}

func (r *fakeRowRepo) FindByStatus(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus) ([]models.ImportRow, error) {
	return r.byStatus(jobID, status), nil
}

func (r *fakeRowRepo) NormalizedValues(ctx context.Context, jobID primitive.ObjectID, status models.RowStatus, fields []string) ([]map[string]string, error) {
	var out []map[string]string
	for _, row := range r.byStatus(jobID, status) {
		values := map[string]string{}
		for _, f := range fields {
			values[f] = row.NormalizedData[f]
		}
		out = append(out, values)
	}
	return out, nil
}

func (r *fakeRowRepo) byStatus(jobID primitive.ObjectID, status models.RowStatus) []models.ImportRow {
	var out []models.ImportRow
	for _, row := range r.rows {
		if row.ImportJobID == jobID && row.Status == status {
			out = append(out, *row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowNumber < out[j].RowNumber })
	return out
}

type fakePublisher struct {
	published []publishedTask
	err       error
}

type publishedTask struct {
	Path  string
	JobID string
	Body  interface{}
}

func (p *fakePublisher) Publish(ctx context.Context, path string, importJobID string, body interface{}) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.published = append(p.published, publishedTask{Path: path, JobID: importJobID, Body: body})
	return fmt.Sprintf("task-%d", len(p.published)), nil
}

type fakeNotifier struct {
	completed []string
	failed    []string
}

func (n *fakeNotifier) JobCompleted(job *models.ImportJob) {
	n.completed = append(n.completed, job.ID.Hex())
}

func (n *fakeNotifier) JobFailed(job *models.ImportJob) {
	n.failed = append(n.failed, job.ID.Hex())
}
