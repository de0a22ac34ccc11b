package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/assessment-workflow-api/internal/dto"
	"github.com/noah-isme/assessment-workflow-api/internal/models"
	"github.com/noah-isme/assessment-workflow-api/internal/repository"
	appErrors "github.com/noah-isme/assessment-workflow-api/pkg/errors"
	"github.com/noah-isme/assessment-workflow-api/pkg/jobs"
	"github.com/noah-isme/assessment-workflow-api/pkg/storage"
)

type exportJobStore interface {
	Create(ctx context.Context, job *models.MarkSheetJob) error
	GetByID(ctx context.Context, id string) (*models.MarkSheetJob, error)
	Update(ctx context.Context, id string, params repository.UpdateJobParams) error
	ListUnfinished(ctx context.Context) ([]models.MarkSheetJob, error)
	ListFinishedBefore(ctx context.Context, cutoff time.Time) ([]models.MarkSheetJob, error)
	Delete(ctx context.Context, id string) error
}

type marksheetSubmissionStore interface {
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	UpdateMarkSheet(ctx context.Context, submissionID string, info *models.MarkSheetInfo) error
}

const jobTypeMarkSheet = "mark_sheet"

// MarkSheetService runs the asynchronous mark sheet pipeline: a POST
// creates a QUEUED job, workers render the artifact to local storage,
// and the finished job exposes a signed, expiring download URL.
type MarkSheetService struct {
	jobsRepo    exportJobStore
	submissions marksheetSubmissionStore
	marks       markStore
	exporter    *ExportService
	storage     *storage.LocalStorage
	signer      *storage.SignedURLSigner
	queue       *jobs.Queue
	audit       auditLogger
	logger      *zap.Logger
}

// NewMarkSheetService constructs the service. Call BindQueue before
// CreateJob is used.
func NewMarkSheetService(jobsRepo exportJobStore, submissions marksheetSubmissionStore, marks markStore, exporter *ExportService, store *storage.LocalStorage, signer *storage.SignedURLSigner, audit auditLogger, logger *zap.Logger) *MarkSheetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if exporter == nil {
		exporter = NewExportService()
	}
	return &MarkSheetService{
		jobsRepo:    jobsRepo,
		submissions: submissions,
		marks:       marks,
		exporter:    exporter,
		storage:     store,
		signer:      signer,
		audit:       audit,
		logger:      logger,
	}
}

// BindQueue attaches the worker queue that will execute jobs.
func (s *MarkSheetService) BindQueue(queue *jobs.Queue) {
	s.queue = queue
}

// CreateJob queues a mark sheet export for a submission.
func (s *MarkSheetService) CreateJob(ctx context.Context, submissionID string, req dto.MarkSheetRequest, actor *models.JWTClaims) (*dto.MarkSheetJobResponse, error) {
	if req.Format != models.MarkSheetFormatCSV && req.Format != models.MarkSheetFormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported mark sheet format %q", req.Format))
	}
	if _, err := s.submissions.GetByID(ctx, submissionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}

	job := &models.MarkSheetJob{
		SubmissionID: submissionID,
		Format:       req.Format,
		Status:       models.MarkSheetStatusQueued,
	}
	if actor != nil {
		job.CreatedBy = actor.UserID
	}
	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.enqueue(job.ID); err != nil {
		s.failJob(ctx, job.ID, "could not queue export job")
		return nil, appErrors.Wrap(err, appErrors.ErrGenerationFailed.Code, appErrors.ErrGenerationFailed.Status, "failed to queue export job")
	}

	if actor != nil && s.audit != nil {
		log := &models.AuditLog{
			UserID:     &actor.UserID,
			Action:     models.AuditActionMarkSheetExport,
			Resource:   "submission",
			ResourceID: &submissionID,
		}
		if err := s.audit.Create(ctx, log); err != nil {
			s.logger.Warn("failed to write audit log", zap.Error(err))
		}
	}

	return &dto.MarkSheetJobResponse{
		JobID:     job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
	}, nil
}

// Status reports progress for one export job.
func (s *MarkSheetService) Status(ctx context.Context, jobID string) (*dto.MarkSheetStatusResponse, error) {
	job, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	return &dto.MarkSheetStatusResponse{
		JobID:        job.ID,
		SubmissionID: job.SubmissionID,
		Format:       job.Format,
		Status:       job.Status,
		Progress:     job.Progress,
		ResultURL:    job.ResultURL,
		SizeBytes:    job.SizeBytes,
		ErrorMessage: job.ErrorMessage,
		FinishedAt:   job.FinishedAt,
	}, nil
}

// ResolveDownload validates a signed token and opens the artifact.
func (s *MarkSheetService) ResolveDownload(ctx context.Context, token string) (*os.File, string, error) {
	jobID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link is invalid or expired")
	}
	job, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.ErrNotFound
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.Status != models.MarkSheetStatusFinished {
		return nil, "", appErrors.Clone(appErrors.ErrWrongState, "export job has not finished")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrNotFound.Code, appErrors.ErrNotFound.Status, "artifact no longer available")
	}
	return file, relPath, nil
}

// HandleJob is the queue handler rendering one mark sheet.
func (s *MarkSheetService) HandleJob(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok || jobID == "" {
		return fmt.Errorf("mark sheet job without id payload")
	}

	record, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load export job %s: %w", jobID, err)
	}
	s.progress(ctx, jobID, models.MarkSheetStatusProcessing, 10)

	submission, err := s.submissions.GetByID(ctx, record.SubmissionID)
	if err != nil {
		s.failJob(ctx, jobID, "submission no longer exists")
		return fmt.Errorf("load submission %s: %w", record.SubmissionID, err)
	}
	marks, err := s.marks.ListBySubmission(ctx, submission.ID)
	if err != nil {
		s.failJob(ctx, jobID, "failed to load marks")
		return fmt.Errorf("load marks for %s: %w", submission.ID, err)
	}
	s.progress(ctx, jobID, models.MarkSheetStatusProcessing, 40)

	dataset := s.exporter.BuildDataset(submission, marks)
	title := fmt.Sprintf("%s Mark Sheet", submission.Type)
	payload, err := s.exporter.Render(record.Format, dataset, title)
	if err != nil {
		s.failJob(ctx, jobID, "rendering failed")
		return fmt.Errorf("render mark sheet %s: %w", jobID, err)
	}
	s.progress(ctx, jobID, models.MarkSheetStatusProcessing, 70)

	filename := fmt.Sprintf("%s.%s", jobID, record.Format)
	if _, err := s.storage.Save(filename, payload); err != nil {
		s.failJob(ctx, jobID, "failed to store artifact")
		return fmt.Errorf("store mark sheet %s: %w", jobID, err)
	}

	token, _, err := s.signer.Generate(jobID, filename)
	if err != nil {
		s.failJob(ctx, jobID, "failed to sign download link")
		return fmt.Errorf("sign mark sheet url %s: %w", jobID, err)
	}
	resultURL := fmt.Sprintf("/api/v1/exports/download?token=%s", token)
	size := int64(len(payload))
	now := time.Now().UTC()
	finished := models.MarkSheetStatusFinished
	progress := 100
	if err := s.jobsRepo.Update(ctx, jobID, repository.UpdateJobParams{
		Status:     &finished,
		Progress:   &progress,
		ResultURL:  &resultURL,
		SizeBytes:  &size,
		FinishedAt: &now,
	}); err != nil {
		return fmt.Errorf("finish export job %s: %w", jobID, err)
	}

	info := &models.MarkSheetInfo{
		JobID:       jobID,
		Filename:    filename,
		Format:      string(record.Format),
		SizeBytes:   size,
		GeneratedAt: &now,
	}
	if err := s.submissions.UpdateMarkSheet(ctx, submission.ID, info); err != nil {
		s.logger.Warn("failed to record mark sheet on submission",
			zap.String("submission_id", submission.ID), zap.Error(err))
	}
	s.logger.Info("mark sheet generated",
		zap.String("job_id", jobID),
		zap.String("submission_id", submission.ID),
		zap.String("format", string(record.Format)),
		zap.Int64("size_bytes", size))
	return nil
}

// RecoverUnfinished re-queues jobs interrupted by a restart. Jobs
// caught mid-processing are failed, since their partial artifacts
// cannot be trusted.
func (s *MarkSheetService) RecoverUnfinished(ctx context.Context) {
	unfinished, err := s.jobsRepo.ListUnfinished(ctx)
	if err != nil {
		s.logger.Error("export job recovery failed", zap.Error(err))
		return
	}
	for _, job := range unfinished {
		switch job.Status {
		case models.MarkSheetStatusQueued:
			if err := s.enqueue(job.ID); err != nil {
				s.logger.Error("failed to requeue export job", zap.String("job_id", job.ID), zap.Error(err))
			}
		case models.MarkSheetStatusProcessing:
			s.failJob(ctx, job.ID, "interrupted by restart")
		}
	}
}

// Cleanup removes finished jobs and their artifacts older than ttl.
func (s *MarkSheetService) Cleanup(ctx context.Context, ttl time.Duration) {
	cutoff := time.Now().UTC().Add(-ttl)
	stale, err := s.jobsRepo.ListFinishedBefore(ctx, cutoff)
	if err != nil {
		s.logger.Error("export cleanup listing failed", zap.Error(err))
		return
	}
	for _, job := range stale {
		filename := fmt.Sprintf("%s.%s", job.ID, job.Format)
		if err := s.storage.Delete(filename); err != nil {
			s.logger.Warn("failed to delete artifact", zap.String("job_id", job.ID), zap.Error(err))
		}
		if err := s.jobsRepo.Delete(ctx, job.ID); err != nil {
			s.logger.Warn("failed to delete export job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}
	if removed, err := s.storage.CleanupOlderThan(ttl); err != nil {
		s.logger.Warn("artifact directory cleanup failed", zap.Error(err))
	} else if len(removed) > 0 {
		s.logger.Info("removed orphaned artifacts", zap.Int("count", len(removed)))
	}
}

// StartCleanupLoop runs Cleanup on an interval until ctx is cancelled.
func (s *MarkSheetService) StartCleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Cleanup(ctx, ttl)
		}
	}
}

func (s *MarkSheetService) enqueue(jobID string) error {
	if s.queue == nil {
		return fmt.Errorf("export queue not bound")
	}
	return s.queue.Enqueue(jobs.Job{
		ID:      jobID,
		Type:    jobTypeMarkSheet,
		Payload: jobID,
	})
}

func (s *MarkSheetService) progress(ctx context.Context, jobID string, status models.MarkSheetJobStatus, value int) {
	if err := s.jobsRepo.Update(ctx, jobID, repository.UpdateJobParams{
		Status:   &status,
		Progress: &value,
	}); err != nil {
		s.logger.Warn("failed to update job progress", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *MarkSheetService) failJob(ctx context.Context, jobID, message string) {
	failed := models.MarkSheetStatusFailed
	now := time.Now().UTC()
	if err := s.jobsRepo.Update(ctx, jobID, repository.UpdateJobParams{
		Status:       &failed,
		FinishedAt:   &now,
		ErrorMessage: &message,
	}); err != nil {
		s.logger.Warn("failed to mark job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}
