package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"go-lead-import/internal/models"
	"go-lead-import/internal/repository"
	"go-lead-import/internal/storage"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

// Reporter produces the per-job error report: one CSV line per invalid row
// with its messages and original raw values. Reports are materialized to
// object storage on first request and streamed from there afterwards.
type Reporter struct {
	jobs  repository.ImportJobRepository
	rows  repository.ImportRowRepository
	store storage.ObjectStorage
	log   *zap.Logger
}

func NewReporter(
	jobs repository.ImportJobRepository,
	rows repository.ImportRowRepository,
	store storage.ObjectStorage,
	log *zap.Logger,
) *Reporter {
	return &Reporter{
		jobs:  jobs,
		rows:  rows,
		store: store,
		log:   log,
	}
}

// ErrorReport returns the report as a stream, generating and storing it when
// no materialized copy exists yet.
func (r *Reporter) ErrorReport(ctx context.Context, job *models.ImportJob) (io.ReadCloser, error) {
	if job.ReportPath != "" {
		exists, err := r.store.Exists(ctx, job.ReportPath)
		if err == nil && exists {
			return r.store.Download(ctx, job.ReportPath)
		}
	}

	data, err := r.buildReport(ctx, job)
	if err != nil {
		return nil, err
	}

	path := "reports/" + job.ID.Hex() + ".csv"
	if err := r.store.Upload(ctx, path, bytes.NewReader(data)); err != nil {
		// Serving the freshly built report still works, materialization
		// is only an optimization for the next request.
		r.log.Warn("failed to store error report",
			zap.String("jobId", job.ID.Hex()),
			zap.Error(err))
	} else if err := r.jobs.SetFields(ctx, job.ID.Hex(), bson.M{"report_path": path}); err != nil {
		r.log.Warn("failed to record report path", zap.String("jobId", job.ID.Hex()), zap.Error(err))
	}

	return io.NopCloser(bytes.NewReader(data)), nil
}

// buildReport writes the CSV: header "Row, Errors" plus every distinct raw
// column name seen across the invalid rows, mapping order first.
func (r *Reporter) buildReport(ctx context.Context, job *models.ImportJob) ([]byte, error) {
	invalid, err := r.rows.FindByStatus(ctx, job.ID, models.RowStatusInvalid)
	if err != nil {
		return nil, fmt.Errorf("failed to load invalid rows: %w", err)
	}

	columns := reportColumns(job, invalid)

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	header := append([]string{"Row", "Errors"}, columns...)
	if err := writer.Write(header); err != nil {
		return nil, err
	}

	for _, row := range invalid {
		record := make([]string, 0, len(header))
		record = append(record, strconv.Itoa(row.RowNumber), formatErrors(row.ValidationErrors))
		for _, col := range columns {
			record = append(record, row.RawData[col])
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// reportColumns is the union of raw column names across the invalid rows,
// ordered by the job's mapping with any stragglers sorted at the end.
func reportColumns(job *models.ImportJob, invalid []models.ImportRow) []string {
	present := map[string]bool{}
	for _, row := range invalid {
		for name := range row.RawData {
			present[name] = true
		}
	}

	var columns []string
	if job.Mapping != nil {
		for _, col := range job.Mapping.Columns {
			if present[col.SourceColumn] {
				columns = append(columns, col.SourceColumn)
				delete(present, col.SourceColumn)
			}
		}
	}

	var rest []string
	for name := range present {
		rest = append(rest, name)
	}
	sort.Strings(rest)
	return append(columns, rest...)
}

// formatErrors renders field errors deterministically, sorted by field name.
func formatErrors(errors map[string]string) string {
	fields := make([]string, 0, len(errors))
	for f := range errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+errors[f])
	}
	return strings.Join(parts, "; ")
}
