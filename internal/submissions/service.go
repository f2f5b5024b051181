// Yantra submission service
// Validates language readiness, persists submissions, stages uploads, and
// enqueues jobs for the worker.

package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"yantra/internal/queue"
	"yantra/internal/staging"
	"yantra/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Validation failures. Handlers map these to HTTP 400.
var (
	ErrLanguageNotFound = errors.New("language not found")
	ErrLanguageDisabled = errors.New("language disabled")
	ErrLanguageNotReady = errors.New("language not ready")
)

// Service handles code submissions end to end up to the queue push.
type Service struct {
	db     *gorm.DB
	broker *queue.Broker
	stager *staging.Stager
}

// NewService wires the submission service with its collaborators.
func NewService(db *gorm.DB, broker *queue.Broker, stager *staging.Stager) *Service {
	return &Service{db: db, broker: broker, stager: stager}
}

// Result is the read model returned to clients polling a job.
type Result struct {
	Status        string                `json:"status"`
	Stdout        *string               `json:"stdout"`
	Stderr        *string               `json:"stderr"`
	CompletedAt   *time.Time            `json:"completed_at"`
	UploadedFiles []models.FileMetadata `json:"uploaded_files,omitempty"`
}

// Submit validates the target language, stages any uploads, persists the
// submission as PENDING, and enqueues the job. The row is committed before
// the queue push so a worker popping the job always finds it.
func (s *Service) Submit(ctx context.Context, code, language string, uploads []staging.Upload) (string, error) {
	var compiler models.Compiler
	err := s.db.WithContext(ctx).First(&compiler, "id = ?", language).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: Language '%s' not found", ErrLanguageNotFound, language)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up language: %w", err)
	}
	if !compiler.Enabled {
		return "", fmt.Errorf("%w: Language '%s' is disabled", ErrLanguageDisabled, language)
	}
	if compiler.BuildStatus != models.BuildStatusReady {
		return "", fmt.Errorf("%w: Language '%s' is not ready (status: %s)",
			ErrLanguageNotReady, language, compiler.BuildStatus)
	}

	jobID := uuid.New().String()

	submission := models.Submission{
		JobID:    jobID,
		Code:     code,
		Language: language,
		Status:   models.SubmissionPending,
	}

	stagedDir := ""
	if len(uploads) > 0 {
		dir, metadata, err := s.stager.Stage(jobID, uploads)
		if err != nil {
			return "", err
		}
		serialized, err := json.Marshal(metadata)
		if err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("failed to serialize file metadata: %w", err)
		}
		files := string(serialized)
		submission.UploadedFiles = &files
		submission.FilesDirectory = &dir
		stagedDir = dir
	}

	// The sweeper only sees committed rows, so a staged directory must not
	// outlive a failed insert or push.
	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&submission).Error
	}); err != nil {
		if stagedDir != "" {
			os.RemoveAll(stagedDir)
		}
		return "", fmt.Errorf("failed to persist submission: %w", err)
	}

	if err := s.broker.PushJob(ctx, queue.JobPayload{
		JobID:    jobID,
		Code:     code,
		Language: language,
	}); err != nil {
		if stagedDir != "" {
			os.RemoveAll(stagedDir)
		}
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	return jobID, nil
}

// GetResults returns the current status and captured streams for a job.
// Unknown job ids yield a NOT_FOUND status rather than an error.
func (s *Service) GetResults(ctx context.Context, jobID string) (Result, error) {
	var submission models.Submission
	err := s.db.WithContext(ctx).First(&submission, "job_id = ?", jobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Result{Status: "NOT_FOUND"}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("failed to fetch submission: %w", err)
	}

	files, err := submission.FileMetadataList()
	if err != nil {
		return Result{}, fmt.Errorf("corrupt file metadata for job %s: %w", jobID, err)
	}

	return Result{
		Status:        submission.Status,
		Stdout:        submission.OutputStdout,
		Stderr:        submission.OutputStderr,
		CompletedAt:   submission.CompletedAt,
		UploadedFiles: files,
	}, nil
}
