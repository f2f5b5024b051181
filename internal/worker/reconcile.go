package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"yantra/internal/queue"
	"yantra/pkg/models"
)

// Reconcile repairs state left behind by a crash between a store commit and
// the matching queue push, or by a worker dying mid-job.
//
//   - Compilers still pending past the grace period get their build
//     re-enqueued. Builds are idempotent, so a duplicate push is harmless.
//   - Submissions stuck RUNNING for more than twice their language timeout
//     are marked ERROR; their worker is gone and nobody will finish them.
func (w *Worker) Reconcile(ctx context.Context) error {
	if err := w.reconcilePendingBuilds(ctx); err != nil {
		return err
	}
	return w.reconcileStuckJobs(ctx)
}

func (w *Worker) reconcilePendingBuilds(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-w.cfg.ReconcileGrace)

	var stale []models.Compiler
	err := w.db.WithContext(ctx).
		Where("build_status = ? AND updated_at < ?", models.BuildStatusPending, cutoff).
		Find(&stale).Error
	if err != nil {
		return fmt.Errorf("failed to list stale pending compilers: %w", err)
	}

	for _, compiler := range stale {
		w.log.Infow("re-enqueueing stale pending build", "compiler_id", compiler.ID)
		if err := w.broker.PushBuild(ctx, queue.BuildPayload{
			Action:     queue.ActionBuild,
			CompilerID: compiler.ID,
		}); err != nil {
			w.log.Errorw("failed to re-enqueue build", "compiler_id", compiler.ID, "error", err)
		}
	}
	return nil
}

func (w *Worker) reconcileStuckJobs(ctx context.Context) error {
	var running []models.Submission
	err := w.db.WithContext(ctx).
		Where("status = ?", models.SubmissionRunning).
		Find(&running).Error
	if err != nil {
		return fmt.Errorf("failed to list running submissions: %w", err)
	}

	now := time.Now().UTC()
	for _, submission := range running {
		// Age from the RUNNING transition, not row creation: a backlogged
		// job may sit PENDING far longer than its timeout before a sibling
		// worker picks it up.
		since := submission.CreatedAt
		if submission.StartedAt != nil {
			since = *submission.StartedAt
		}
		timeout := w.languageTimeout(ctx, submission.Language)
		if now.Sub(since) <= 2*timeout {
			continue
		}

		w.log.Warnw("marking abandoned job as failed",
			"job_id", submission.JobID, "age", now.Sub(since))
		msg := "Job was abandoned by a crashed worker and has been marked as failed."
		w.finishSubmission(ctx, submission.JobID, models.SubmissionError, nil, &msg)
	}
	return nil
}

func (w *Worker) languageTimeout(ctx context.Context, language string) time.Duration {
	var compiler models.Compiler
	if err := w.db.WithContext(ctx).First(&compiler, "id = ?", language).Error; err != nil {
		return 10 * time.Second
	}
	return time.Duration(compiler.TimeoutSeconds) * time.Second
}

// SweepJobDirs removes staging directories of submissions that reached a
// terminal state before the retention window. Without this the jobs
// directory grows without bound.
func (w *Worker) SweepJobDirs(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-w.cfg.JobDirRetention)

	var done []models.Submission
	err := w.db.WithContext(ctx).
		Where("status IN ? AND files_directory IS NOT NULL AND completed_at < ?",
			[]string{models.SubmissionCompleted, models.SubmissionTimeout, models.SubmissionError},
			cutoff).
		Find(&done).Error
	if err != nil {
		w.log.Errorw("sweep query failed", "error", err)
		return
	}

	for _, submission := range done {
		dir := *submission.FilesDirectory
		if err := os.RemoveAll(dir); err != nil {
			w.log.Warnw("failed to remove job directory", "job_id", submission.JobID, "dir", dir, "error", err)
			continue
		}
		if err := w.db.WithContext(ctx).Model(&models.Submission{}).
			Where("job_id = ?", submission.JobID).
			Update("files_directory", nil).Error; err != nil {
			w.log.Warnw("failed to clear files_directory", "job_id", submission.JobID, "error", err)
		}
		w.log.Debugw("swept job directory", "job_id", submission.JobID, "dir", dir)
	}
}
