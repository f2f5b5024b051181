// Yantra worker
// Single-threaded loop draining the job and build queues in round-robin,
// executing sandboxed code and image builds, and reconciling persisted
// state. Run more worker processes to scale horizontally.

package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"yantra/internal/config"
	"yantra/internal/logging"
	"yantra/internal/metrics"
	"yantra/internal/queue"
	"yantra/internal/sandbox"
	"yantra/pkg/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Worker drains both queues and applies state transitions to the store.
type Worker struct {
	db       *gorm.DB
	broker   *queue.Broker
	executor sandbox.Executor
	cfg      *config.Config
	log      *zap.SugaredLogger
}

// New wires a worker with its collaborators. All clients are injected; the
// worker holds no global state.
func New(db *gorm.DB, broker *queue.Broker, executor sandbox.Executor, cfg *config.Config) *Worker {
	return &Worker{
		db:       db,
		broker:   broker,
		executor: executor,
		cfg:      cfg,
		log:      logging.S(),
	}
}

// Run reconciles leftover state, then loops until ctx is cancelled. Each
// iteration pops at most one job and one build; when both queues are empty
// it sleeps for the poll interval.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Reconcile(ctx); err != nil {
		w.log.Warnw("startup reconciliation failed", "error", err)
	}

	sweepTicker := time.NewTicker(w.cfg.SweepInterval)
	defer sweepTicker.Stop()

	w.log.Info("worker started, processing jobs and builds")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return ctx.Err()
		case <-sweepTicker.C:
			w.SweepJobDirs(ctx)
		default:
		}

		jobDone := w.processJobQueue(ctx)
		buildDone := w.processBuildQueue(ctx)

		if !jobDone && !buildDone {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.cfg.PollInterval):
			}
		}
	}
}

func (w *Worker) processJobQueue(ctx context.Context) bool {
	payload, ok, err := w.broker.PopJob(ctx)
	if err != nil {
		w.log.Errorw("failed to pop job queue", "error", err)
		return false
	}
	if !ok {
		return false
	}

	w.log.Infow("processing job", "job_id", payload.JobID, "language", payload.Language)
	w.dispatch(func() { w.runSubmission(ctx, payload) })
	return true
}

func (w *Worker) processBuildQueue(ctx context.Context) bool {
	payload, ok, err := w.broker.PopBuild(ctx)
	if err != nil {
		w.log.Errorw("failed to pop build queue", "error", err)
		return false
	}
	if !ok {
		return false
	}

	w.dispatch(func() {
		switch payload.Action {
		case queue.ActionBuild:
			w.buildCompiler(ctx, payload.CompilerID)
		case queue.ActionCleanup:
			w.cleanupCompiler(ctx, payload.CompilerID, payload.ImageTag)
		default:
			w.log.Warnw("unknown build queue action", "action", payload.Action)
		}
	})
	return true
}

// dispatch shields the loop from panics inside a handler. The in-flight
// record stays in whatever state the handler reached; reconciliation picks
// it up later.
func (w *Worker) dispatch(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Errorw("handler panicked", "panic", r)
		}
	}()
	fn()
}

// runSubmission executes one job inside the sandbox and records the
// terminal state on the submission row.
func (w *Worker) runSubmission(ctx context.Context, payload queue.JobPayload) {
	var submission models.Submission
	err := w.db.WithContext(ctx).First(&submission, "job_id = ?", payload.JobID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w.log.Warnw("job has no submission row, dropping", "job_id", payload.JobID)
		return
	}
	if err != nil {
		w.log.Errorw("failed to fetch submission", "job_id", payload.JobID, "error", err)
		return
	}

	startedAt := time.Now().UTC()
	if err := w.db.WithContext(ctx).Model(&submission).
		Updates(map[string]interface{}{
			"status":     models.SubmissionRunning,
			"started_at": &startedAt,
		}).Error; err != nil {
		w.log.Errorw("failed to mark job running", "job_id", payload.JobID, "error", err)
		return
	}

	var compiler models.Compiler
	err = w.db.WithContext(ctx).
		Where("id = ? AND enabled = ? AND build_status = ?", payload.Language, true, models.BuildStatusReady).
		First(&compiler).Error
	if err != nil {
		msg := fmt.Sprintf("Compiler for language '%s' is not available or not ready", payload.Language)
		w.finishSubmission(ctx, payload.JobID, models.SubmissionError, nil, &msg)
		metrics.JobsProcessed.WithLabelValues(models.SubmissionError).Inc()
		return
	}

	argv, err := compiler.RunCommandArgv()
	if err != nil {
		msg := fmt.Sprintf("Invalid run command for language '%s': %v", payload.Language, err)
		w.finishSubmission(ctx, payload.JobID, models.SubmissionError, nil, &msg)
		metrics.JobsProcessed.WithLabelValues(models.SubmissionError).Inc()
		return
	}

	jobDir := ""
	if submission.FilesDirectory != nil {
		jobDir = *submission.FilesDirectory
	}

	limits := sandbox.Limits{
		Memory:  compiler.MemoryLimit,
		CPU:     compiler.CPULimit,
		Timeout: time.Duration(compiler.TimeoutSeconds) * time.Second,
	}

	started := time.Now()
	result, err := w.executor.Run(ctx, compiler.ImageTag, argv, []byte(payload.Code), jobDir, limits)
	metrics.JobDuration.Observe(time.Since(started).Seconds())

	switch {
	case errors.Is(err, sandbox.ErrExecTimeout):
		msg := fmt.Sprintf("Execution timed out after %d seconds.", compiler.TimeoutSeconds)
		w.finishSubmission(ctx, payload.JobID, models.SubmissionTimeout, &result.Stdout, &msg)
		metrics.JobsProcessed.WithLabelValues(models.SubmissionTimeout).Inc()
	case errors.Is(err, context.Canceled):
		// Shutdown killed the sandbox mid-run. Leave the row RUNNING;
		// reconciliation on the next worker start settles it.
		w.log.Warnw("job interrupted by shutdown", "job_id", payload.JobID)
	case err != nil:
		msg := err.Error()
		w.finishSubmission(ctx, payload.JobID, models.SubmissionError, nil, &msg)
		metrics.JobsProcessed.WithLabelValues(models.SubmissionError).Inc()
	default:
		w.finishSubmission(ctx, payload.JobID, models.SubmissionCompleted, &result.Stdout, &result.Stderr)
		metrics.JobsProcessed.WithLabelValues(models.SubmissionCompleted).Inc()
	}
}

func (w *Worker) finishSubmission(ctx context.Context, jobID, status string, stdout, stderr *string) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       status,
		"completed_at": &now,
	}
	if stdout != nil {
		updates["output_stdout"] = stdout
	}
	if stderr != nil {
		updates["output_stderr"] = stderr
	}
	if err := w.db.WithContext(ctx).Model(&models.Submission{}).
		Where("job_id = ?", jobID).Updates(updates).Error; err != nil {
		w.log.Errorw("failed to record job result", "job_id", jobID, "status", status, "error", err)
	}
}

// buildCompiler drives one pass of the image-build state machine.
func (w *Worker) buildCompiler(ctx context.Context, compilerID string) {
	var compiler models.Compiler
	err := w.db.WithContext(ctx).First(&compiler, "id = ?", compilerID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		w.log.Warnw("build requested for unknown compiler, dropping", "compiler_id", compilerID)
		return
	}
	if err != nil {
		w.log.Errorw("failed to fetch compiler", "compiler_id", compilerID, "error", err)
		return
	}

	w.log.Infow("building compiler image", "compiler_id", compilerID, "image", compiler.ImageTag)
	if err := w.db.WithContext(ctx).Model(&compiler).Updates(map[string]interface{}{
		"build_status": models.BuildStatusBuilding,
		"updated_at":   time.Now().UTC(),
	}).Error; err != nil {
		w.log.Errorw("failed to mark compiler building", "compiler_id", compilerID, "error", err)
		return
	}

	started := time.Now()
	result, err := w.executor.BuildImage(ctx, compiler.DockerfileContent, compiler.ImageTag)
	metrics.BuildDuration.Observe(time.Since(started).Seconds())

	now := time.Now().UTC()
	switch {
	case errors.Is(err, sandbox.ErrBuildTimeout):
		msg := "Build timed out after 10 minutes"
		w.recordBuildResult(ctx, compilerID, map[string]interface{}{
			"build_status": models.BuildStatusFailed,
			"build_error":  &msg,
			"build_logs":   &result.Log,
			"updated_at":   now,
		})
		metrics.BuildsProcessed.WithLabelValues("timeout").Inc()
		w.log.Warnw("compiler build timed out", "compiler_id", compilerID)
	case errors.Is(err, context.Canceled):
		// Shutdown killed the build, not the Dockerfile. Roll back to
		// pending so reconciliation re-enqueues it; record through a
		// detached context since ctx is already cancelled.
		w.recordBuildResult(context.Background(), compilerID, map[string]interface{}{
			"build_status": models.BuildStatusPending,
			"updated_at":   now,
		})
		w.log.Warnw("build interrupted by shutdown", "compiler_id", compilerID)
	case err != nil:
		msg := err.Error()
		w.recordBuildResult(ctx, compilerID, map[string]interface{}{
			"build_status": models.BuildStatusFailed,
			"build_error":  &msg,
			"build_logs":   &result.Log,
			"updated_at":   now,
		})
		metrics.BuildsProcessed.WithLabelValues("error").Inc()
		w.log.Errorw("compiler build failed", "compiler_id", compilerID, "error", err)
	case result.ExitCode == 0:
		w.recordBuildResult(ctx, compilerID, map[string]interface{}{
			"build_status": models.BuildStatusReady,
			"build_error":  nil,
			"build_logs":   &result.Log,
			"built_at":     &now,
			"updated_at":   now,
		})
		metrics.BuildsProcessed.WithLabelValues("success").Inc()
		w.log.Infow("compiler built", "compiler_id", compilerID, "image", compiler.ImageTag)
	default:
		tail := logTail(result.Log, 20)
		w.recordBuildResult(ctx, compilerID, map[string]interface{}{
			"build_status": models.BuildStatusFailed,
			"build_error":  &tail,
			"build_logs":   &result.Log,
			"updated_at":   now,
		})
		metrics.BuildsProcessed.WithLabelValues("failed").Inc()
		w.log.Warnw("compiler build exited non-zero", "compiler_id", compilerID, "exit_code", result.ExitCode)
	}
}

func (w *Worker) recordBuildResult(ctx context.Context, compilerID string, updates map[string]interface{}) {
	if err := w.db.WithContext(ctx).Model(&models.Compiler{}).
		Where("id = ?", compilerID).Updates(updates).Error; err != nil {
		w.log.Errorw("failed to record build result", "compiler_id", compilerID, "error", err)
	}
}

// cleanupCompiler removes the image of a deleted compiler. Failures are
// logged and swallowed; a missing image is fine.
func (w *Worker) cleanupCompiler(ctx context.Context, compilerID, imageTag string) {
	w.log.Infow("cleaning up compiler image", "compiler_id", compilerID, "image", imageTag)
	if err := w.executor.RemoveImage(ctx, imageTag); err != nil {
		w.log.Warnw("image cleanup failed", "image", imageTag, "error", err)
	}
}

// logTail returns the last n lines of s.
func logTail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
