package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"go-lead-import/internal/config"
	"go-lead-import/internal/middleware"
	"go-lead-import/internal/models"
	"go-lead-import/internal/notify"
	"go-lead-import/internal/queue"
	"go-lead-import/internal/repository"
	"go-lead-import/internal/storage"
	"go-lead-import/pkg/utils"

	"github.com/gofiber/fiber/v2"
	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// ImportController hosts the orchestration triggers: thin validating
// handlers that flip job status and relay work to the queue or the workers.
// The business logic lives in the workers and resolvers.
type ImportController struct {
	jobs     repository.ImportJobRepository
	rows     repository.ImportRowRepository
	store    storage.ObjectStorage
	queue    queue.Publisher
	parser   *ParseWorker
	commit   *CommitWorker
	reporter *Reporter
	notifier notify.Notifier
	cfg      *config.Config
	log      *zap.Logger
}

func NewImportController(
	jobs repository.ImportJobRepository,
	rows repository.ImportRowRepository,
	store storage.ObjectStorage,
	publisher queue.Publisher,
	parser *ParseWorker,
	commit *CommitWorker,
	reporter *Reporter,
	notifier notify.Notifier,
	cfg *config.Config,
	log *zap.Logger,
) *ImportController {
	return &ImportController{
		jobs:     jobs,
		rows:     rows,
		store:    store,
		queue:    publisher,
		parser:   parser,
		commit:   commit,
		reporter: reporter,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
	}
}

// CreateJob accepts the upload, stores the file, detects its shape and
// returns the job with a preview and suggested mapping. The job stays
// pending until the mapping is confirmed.
func (c *ImportController) CreateJob(ctx *fiber.Ctx) error {
	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to open file"})
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to read file"})
	}

	fileType, err := detectFileType(fileHeader.Filename)
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	job := &models.ImportJob{
		ID:         primitive.NewObjectID(),
		OwnerID:    ctx.FormValue("owner_id"),
		OwnerEmail: ctx.FormValue("owner_email"),
		FileName:   fileHeader.Filename,
		FileType:   fileType,
		Encoding:   "utf-8",
		Status:     models.ImportStatusPending,
	}

	switch fileType {
	case models.FileTypeCSV:
		job.Delimiter = detectDelimiter(data)
	case models.FileTypeExcel:
		sheet, err := detectSheet(data)
		if err != nil {
			return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
		}
		job.SheetName = sheet
	}

	preview, err := buildPreview(job, io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	job.TotalRows = preview.TotalRows

	job.FilePath = "uploads/" + job.ID.Hex() + "/" + fileHeader.Filename
	if err := c.store.Upload(ctx.UserContext(), job.FilePath, bytes.NewReader(data)); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to store file"})
	}

	if err := c.jobs.Create(ctx.UserContext(), job); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to create job"})
	}

	return ctx.Status(fiber.StatusCreated).JSON(fiber.Map{
		"job":     job,
		"preview": preview,
	})
}

func detectSheet(data []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", fmt.Errorf("no sheets found in spreadsheet")
	}
	return sheets[0], nil
}

type confirmMappingRequest struct {
	Mapping    models.ColumnMapping    `json:"mapping"`
	Assignment models.AssignmentConfig `json:"assignment"`
	Duplicates models.DuplicateConfig  `json:"duplicates"`
}

// ConfirmMapping stores the (possibly user-edited) mapping and the
// assignment/duplicate configuration, moving the job to ready.
func (c *ImportController) ConfirmMapping(ctx *fiber.Ctx) error {
	jobID := ctx.Params("id")

	var req confirmMappingRequest
	if err := json.Unmarshal(ctx.Body(), &req); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if len(req.Mapping.Mapped()) == 0 {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "mapping binds no columns"})
	}

	job, err := c.jobs.Get(ctx.UserContext(), jobID)
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	if !job.Status.Startable() {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("mapping cannot change in status %q", job.Status),
		})
	}

	if err := c.jobs.SetFields(ctx.UserContext(), jobID, bson.M{
		"mapping":    req.Mapping,
		"assignment": req.Assignment,
		"duplicates": req.Duplicates,
	}); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to save mapping"})
	}

	if _, err := c.jobs.TransitionStatus(ctx.UserContext(), jobID,
		[]models.ImportStatus{models.ImportStatusPending, models.ImportStatusReady},
		models.ImportStatusReady); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to update status"})
	}

	job, err = c.jobs.Get(ctx.UserContext(), jobID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(job)
}

// Start validates preconditions, flips the job to queued and publishes the
// first parse task. A publish failure reverts the optimistic status change
// into failed so operators can see which phase broke.
func (c *ImportController) Start(ctx *fiber.Ctx) error {
	jobID := ctx.Params("id")

	job, err := c.jobs.Get(ctx.UserContext(), jobID)
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	if !job.Status.Startable() {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("job cannot start from status %q", job.Status),
		})
	}
	if job.Mapping == nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "confirm a column mapping first"})
	}

	won, err := c.jobs.TransitionStatus(ctx.UserContext(), jobID,
		[]models.ImportStatus{models.ImportStatusPending, models.ImportStatusReady},
		models.ImportStatusQueued)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !won {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "job was started concurrently"})
	}

	workerID, err := c.queue.Publish(ctx.UserContext(), "/internal/import/parse", jobID, ParseRequest{
		ImportJobID: jobID,
		StartChunk:  0,
	})
	if err != nil {
		message := fmt.Sprintf("failed to publish parse task: %v", err)
		c.jobs.Fail(ctx.UserContext(), jobID, message)
		if failed, ferr := c.jobs.Get(ctx.UserContext(), jobID); ferr == nil {
			c.notifier.JobFailed(failed)
		}
		c.log.Error("start failed", zap.String("jobId", jobID), zap.Error(err))
		return ctx.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": message})
	}

	if err := c.jobs.SetFields(ctx.UserContext(), jobID, bson.M{"worker_id": workerID}); err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	job, _ = c.jobs.Get(ctx.UserContext(), jobID)
	return ctx.JSON(job)
}

// Resume runs one commit batch synchronously. Any job not in a terminal
// status can be resumed; a job with nothing left is completed on the spot.
func (c *ImportController) Resume(ctx *fiber.Ctx) error {
	jobID := ctx.Params("id")

	job, err := c.jobs.Get(ctx.UserContext(), jobID)
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	if job.Status.Terminal() {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("job is %s", job.Status),
		})
	}

	remainingBefore, err := c.rows.CountByStatus(ctx.UserContext(), job.ID, models.RowStatusValid)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	result, err := c.commit.ProcessBatch(ctx.UserContext(), CommitRequest{ImportJobID: jobID})
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(fiber.Map{
		"success":          true,
		"result":           result,
		"remaining_before": remainingBefore,
	})
}

// ResumeStatus reports the job plus the remaining valid-row count.
func (c *ImportController) ResumeStatus(ctx *fiber.Ctx) error {
	jobID := ctx.Params("id")

	job, err := c.jobs.Get(ctx.UserContext(), jobID)
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}

	remaining, err := c.rows.CountByStatus(ctx.UserContext(), job.ID, models.RowStatusValid)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.JSON(fiber.Map{
		"job":                  job,
		"remaining_valid_rows": remaining,
	})
}

// Cancel marks the job cancelled; the workers check for it before every
// chunk and batch.
func (c *ImportController) Cancel(ctx *fiber.Ctx) error {
	jobID := ctx.Params("id")

	won, err := c.jobs.TransitionStatus(ctx.UserContext(), jobID,
		[]models.ImportStatus{
			models.ImportStatusPending,
			models.ImportStatusReady,
			models.ImportStatusQueued,
			models.ImportStatusParsing,
			models.ImportStatusImporting,
		},
		models.ImportStatusCancelled)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	if !won {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "job is already terminal"})
	}

	job, err := c.jobs.Get(ctx.UserContext(), jobID)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(job)
}

// GetJob is the progress read used by polling clients.
func (c *ImportController) GetJob(ctx *fiber.Ctx) error {
	job, err := c.jobs.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}
	return ctx.JSON(job.Progress())
}

// ListJobs returns recent jobs, optionally filtered by owner.
func (c *ImportController) ListJobs(ctx *fiber.Ctx) error {
	var jobs []models.ImportJob
	var err error

	if owner := ctx.Query("owner"); owner != "" {
		jobs, err = c.jobs.FindByOwner(ctx.UserContext(), owner, 50)
	} else {
		jobs, err = c.jobs.FindRecent(ctx.UserContext(), 50)
	}
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(jobs)
}

// Report streams the job's error report CSV.
func (c *ImportController) Report(ctx *fiber.Ctx) error {
	job, err := c.jobs.Get(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "job not found"})
	}

	report, err := c.reporter.ErrorReport(ctx.UserContext(), job)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	ctx.Set("Content-Type", "text/csv")
	ctx.Set("Content-Disposition", `attachment; filename="import-errors-`+job.ID.Hex()+`.csv"`)
	return ctx.SendStream(report)
}

// ParseCallback is the queue-invoked parse stage entry point. A non-2xx
// response tells the dispatcher to retry.
func (c *ImportController) ParseCallback(ctx *fiber.Ctx) error {
	var req ParseRequest
	if err := json.Unmarshal(ctx.Body(), &req); err != nil || req.ImportJobID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid parse task"})
	}
	if !callbackMatchesJob(ctx, req.ImportJobID) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token does not match job"})
	}

	if err := c.parser.ProcessChunk(ctx.UserContext(), req); err != nil {
		c.log.Error("parse chunk failed", zap.String("jobId", req.ImportJobID), zap.Error(err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"success": true})
}

// CommitCallback is the queue-invoked commit stage entry point.
func (c *ImportController) CommitCallback(ctx *fiber.Ctx) error {
	var req CommitRequest
	if err := json.Unmarshal(ctx.Body(), &req); err != nil || req.ImportJobID == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid commit task"})
	}
	if !callbackMatchesJob(ctx, req.ImportJobID) {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "token does not match job"})
	}

	result, err := c.commit.ProcessBatch(ctx.UserContext(), req)
	if err != nil {
		c.log.Error("commit batch failed", zap.String("jobId", req.ImportJobID), zap.Error(err))
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"success": true, "result": result})
}

func callbackMatchesJob(ctx *fiber.Ctx, jobID string) bool {
	claims, ok := ctx.Locals(middleware.CallbackClaimsKey).(*utils.CallbackClaims)
	if !ok {
		return false
	}
	return claims.ImportJobID == jobID
}
