package models

import (
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ImportStatus string

const (
	ImportStatusPending   ImportStatus = "pending"
	ImportStatusReady     ImportStatus = "ready"
	ImportStatusQueued    ImportStatus = "queued"
	ImportStatusParsing   ImportStatus = "parsing"
	ImportStatusImporting ImportStatus = "importing"
	ImportStatusCompleted ImportStatus = "completed"
	ImportStatusFailed    ImportStatus = "failed"
	ImportStatusCancelled ImportStatus = "cancelled"
)

// Terminal reports whether no further stage execution is allowed.
func (s ImportStatus) Terminal() bool {
	return s == ImportStatusCompleted || s == ImportStatusFailed || s == ImportStatusCancelled
}

var importTransitions = map[ImportStatus][]ImportStatus{
	ImportStatusPending: {ImportStatusReady, ImportStatusQueued, ImportStatusFailed, ImportStatusCancelled},
	ImportStatusReady:   {ImportStatusReady, ImportStatusQueued, ImportStatusFailed, ImportStatusCancelled},
	ImportStatusQueued: {ImportStatusParsing, ImportStatusImporting, ImportStatusCompleted, ImportStatusFailed, ImportStatusCancelled},
	// parsing -> completed is the empty-file short-circuit: nothing to
	// commit means the job is done as soon as parsing confirms it.
	ImportStatusParsing: {ImportStatusParsing, ImportStatusImporting, ImportStatusCompleted, ImportStatusFailed, ImportStatusCancelled},
	// importing -> importing covers resumed batches; queued/importing ->
	// completed covers the resume short-circuit when no valid rows remain.
	ImportStatusImporting: {ImportStatusImporting, ImportStatusCompleted, ImportStatusFailed, ImportStatusCancelled},
	ImportStatusCompleted: {},
	ImportStatusFailed:    {},
	ImportStatusCancelled: {},
}

// CanTransitionTo reports whether the status change is legal under the
// job lifecycle: pending -> ready -> queued -> parsing -> importing ->
// {completed, failed, cancelled}.
func (s ImportStatus) CanTransitionTo(next ImportStatus) bool {
	for _, allowed := range importTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Startable reports whether a start request may flip the job to queued.
func (s ImportStatus) Startable() bool {
	return s == ImportStatusPending || s == ImportStatusReady
}

type FileType string

const (
	FileTypeCSV   FileType = "csv"
	FileTypeExcel FileType = "xlsx"
)

// ColumnMap binds one source column to a CRM target field. Confidence is the
// auto-mapper's score; IsManual marks a user override.
type ColumnMap struct {
	SourceColumn string   `json:"source_column" bson:"source_column"`
	SourceIndex  int      `json:"source_index" bson:"source_index"`
	TargetField  string   `json:"target_field" bson:"target_field"`
	Confidence   float64  `json:"confidence" bson:"confidence"`
	IsManual     bool     `json:"is_manual" bson:"is_manual"`
	SampleValues []string `json:"sample_values,omitempty" bson:"sample_values,omitempty"`
}

type ColumnMapping struct {
	Columns        []ColumnMap `json:"columns" bson:"columns"`
	HasHeaderRow   bool        `json:"has_header_row" bson:"has_header_row"`
	HeaderRowIndex int         `json:"header_row_index" bson:"header_row_index"`
}

// Mapped returns the columns bound to a target field.
func (m *ColumnMapping) Mapped() []ColumnMap {
	var out []ColumnMap
	for _, c := range m.Columns {
		if c.TargetField != "" {
			out = append(out, c)
		}
	}
	return out
}

type AssignmentMode string

const (
	AssignmentModeNone       AssignmentMode = "none"
	AssignmentModeRoundRobin AssignmentMode = "round_robin"
	AssignmentModeSpecific   AssignmentMode = "specific"
	AssignmentModeRule       AssignmentMode = "rule"
)

// AssignmentRule pairs a Tengo predicate over row fields with the user the
// lead goes to when the predicate is true.
type AssignmentRule struct {
	Expr   string `json:"expr" bson:"expr"`
	UserID string `json:"user_id" bson:"user_id"`
}

// AssignmentConfig is a closed union keyed by Mode; only the fields of the
// active mode are meaningful.
type AssignmentConfig struct {
	Mode    AssignmentMode   `json:"mode" bson:"mode"`
	UserIDs []string         `json:"user_ids,omitempty" bson:"user_ids,omitempty"`
	UserID  string           `json:"user_id,omitempty" bson:"user_id,omitempty"`
	Rules   []AssignmentRule `json:"rules,omitempty" bson:"rules,omitempty"`
}

func (c *AssignmentConfig) Validate() error {
	switch c.Mode {
	case "", AssignmentModeNone:
	case AssignmentModeRoundRobin:
		if len(c.UserIDs) == 0 {
			return fmt.Errorf("round_robin assignment requires user_ids")
		}
	case AssignmentModeSpecific:
		if c.UserID == "" {
			return fmt.Errorf("specific assignment requires user_id")
		}
	case AssignmentModeRule:
		if len(c.Rules) == 0 {
			return fmt.Errorf("rule assignment requires rules")
		}
		for i, r := range c.Rules {
			if r.Expr == "" || r.UserID == "" {
				return fmt.Errorf("rule %d: expr and user_id required", i)
			}
		}
	default:
		return fmt.Errorf("unknown assignment mode %q", c.Mode)
	}
	return nil
}

func (c *AssignmentConfig) UnmarshalJSON(data []byte) error {
	type alias AssignmentConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = AssignmentConfig(a)
	return c.Validate()
}

type DuplicateStrategy string

const (
	DuplicateSkip      DuplicateStrategy = "skip"
	DuplicateOverwrite DuplicateStrategy = "overwrite"
	DuplicateMerge     DuplicateStrategy = "merge"
)

type DuplicateConfig struct {
	Strategy        DuplicateStrategy `json:"strategy" bson:"strategy"`
	CheckFields     []string          `json:"check_fields" bson:"check_fields"`
	CheckDatabase   bool              `json:"check_database" bson:"check_database"`
	CheckWithinFile bool              `json:"check_within_file" bson:"check_within_file"`
}

// Enabled reports whether any duplicate detection runs at all.
func (c *DuplicateConfig) Enabled() bool {
	return c.CheckDatabase || c.CheckWithinFile
}

func (c *DuplicateConfig) Validate() error {
	switch c.Strategy {
	case "", DuplicateSkip, DuplicateOverwrite, DuplicateMerge:
	default:
		return fmt.Errorf("unknown duplicate strategy %q", c.Strategy)
	}
	if c.Enabled() && len(c.CheckFields) == 0 {
		return fmt.Errorf("duplicate check requires check_fields")
	}
	return nil
}

func (c *DuplicateConfig) UnmarshalJSON(data []byte) error {
	type alias DuplicateConfig
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*c = DuplicateConfig(a)
	return c.Validate()
}

// ImportJob is one bulk-import run for one uploaded file. It is the unit of
// external addressing; counters only move forward and are updated with
// atomic increments so overlapping invocations never lose counts.
type ImportJob struct {
	ID         primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	OwnerID    string             `json:"owner_id" bson:"owner_id"`
	OwnerEmail string             `json:"owner_email,omitempty" bson:"owner_email,omitempty"`

	FileName  string   `json:"file_name" bson:"file_name"`
	FileType  FileType `json:"file_type" bson:"file_type"`
	FilePath  string   `json:"file_path" bson:"file_path"`
	Encoding  string   `json:"encoding" bson:"encoding"`
	Delimiter string   `json:"delimiter" bson:"delimiter"`
	SheetName string   `json:"sheet_name,omitempty" bson:"sheet_name,omitempty"`

	Mapping    *ColumnMapping   `json:"mapping,omitempty" bson:"mapping,omitempty"`
	Assignment AssignmentConfig `json:"assignment" bson:"assignment"`
	Duplicates DuplicateConfig  `json:"duplicates" bson:"duplicates"`

	TotalRows     int `json:"total_rows" bson:"total_rows"`
	ProcessedRows int `json:"processed_rows" bson:"processed_rows"`
	ValidRows     int `json:"valid_rows" bson:"valid_rows"`
	InvalidRows   int `json:"invalid_rows" bson:"invalid_rows"`
	ImportedRows  int `json:"imported_rows" bson:"imported_rows"`
	SkippedRows   int `json:"skipped_rows" bson:"skipped_rows"`
	CurrentChunk  int `json:"current_chunk" bson:"current_chunk"`
	TotalChunks   int `json:"total_chunks" bson:"total_chunks"`

	// AssignCursor is the persisted round-robin position. It survives
	// resumed invocations, which an in-memory index would not.
	AssignCursor int64 `json:"-" bson:"assign_cursor"`

	Status       ImportStatus `json:"status" bson:"status"`
	ErrorMessage string       `json:"error_message,omitempty" bson:"error_message,omitempty"`
	WorkerID     string       `json:"worker_id,omitempty" bson:"worker_id,omitempty"`
	ReportPath   string       `json:"report_path,omitempty" bson:"report_path,omitempty"`

	CreatedAt   time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" bson:"updated_at"`
	StartedAt   *time.Time `json:"started_at,omitempty" bson:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
}

type RowStatus string

const (
	RowStatusValid    RowStatus = "valid"
	RowStatusInvalid  RowStatus = "invalid"
	RowStatusImported RowStatus = "imported"
	RowStatusSkipped  RowStatus = "skipped"
)

// ImportRow is one source file row. Created as valid or invalid by the parse
// stage; valid rows are transitioned exactly once to imported or skipped by
// the commit stage. Invalid rows are terminal.
type ImportRow struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	ImportJobID primitive.ObjectID `json:"import_job_id" bson:"import_job_id"`
	RowNumber   int                `json:"row_number" bson:"row_number"`

	// RawData keeps the original column name -> raw value, verbatim, for
	// audit and the error report.
	RawData        map[string]string `json:"raw_data" bson:"raw_data"`
	NormalizedData map[string]string `json:"normalized_data,omitempty" bson:"normalized_data,omitempty"`

	Status           RowStatus         `json:"status" bson:"status"`
	ValidationErrors map[string]string `json:"validation_errors,omitempty" bson:"validation_errors,omitempty"`
	Warnings         []string          `json:"warnings,omitempty" bson:"warnings,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// JobProgress is the read shape served to polling clients and pushed on the
// progress stream.
type JobProgress struct {
	ID            string       `json:"id"`
	Status        ImportStatus `json:"status"`
	TotalRows     int          `json:"total_rows"`
	ProcessedRows int          `json:"processed_rows"`
	ValidRows     int          `json:"valid_rows"`
	InvalidRows   int          `json:"invalid_rows"`
	ImportedRows  int          `json:"imported_rows"`
	SkippedRows   int          `json:"skipped_rows"`
	CurrentChunk  int          `json:"current_chunk"`
	TotalChunks   int          `json:"total_chunks"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	StartedAt     *time.Time   `json:"started_at,omitempty"`
	CompletedAt   *time.Time   `json:"completed_at,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Progress builds the external progress view of the job.
func (j *ImportJob) Progress() JobProgress {
	return JobProgress{
		ID:            j.ID.Hex(),
		Status:        j.Status,
		TotalRows:     j.TotalRows,
		ProcessedRows: j.ProcessedRows,
		ValidRows:     j.ValidRows,
		InvalidRows:   j.InvalidRows,
		ImportedRows:  j.ImportedRows,
		SkippedRows:   j.SkippedRows,
		CurrentChunk:  j.CurrentChunk,
		TotalChunks:   j.TotalChunks,
		ErrorMessage:  j.ErrorMessage,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		UpdatedAt:     j.UpdatedAt,
	}
}
