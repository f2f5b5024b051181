// Yantra compiler service
// CRUD, rebuild, and cleanup over compiler definitions; drives the
// asynchronous image-build state machine through the build queue.

package compilers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"yantra/internal/queue"
	"yantra/pkg/models"

	"gorm.io/gorm"
)

// Service errors. Handlers map ErrNotFound to 404 and the rest to 400.
var (
	ErrDuplicateID     = errors.New("compiler id already exists")
	ErrNotFound        = errors.New("compiler not found")
	ErrNothingToUpdate = errors.New("no fields to update")
)

// Service manages compiler definitions.
type Service struct {
	db     *gorm.DB
	broker *queue.Broker
}

// NewService wires the compiler service with its collaborators.
func NewService(db *gorm.DB, broker *queue.Broker) *Service {
	return &Service{db: db, broker: broker}
}

// CreateRequest carries a new compiler definition.
type CreateRequest struct {
	ID                string   `json:"id" binding:"required"`
	Name              string   `json:"name" binding:"required"`
	DockerfileContent string   `json:"dockerfile_content" binding:"required"`
	RunCommand        []string `json:"run_command" binding:"required"`
	Version           string   `json:"version"`
	MemoryLimit       string   `json:"memory_limit"`
	CPULimit          string   `json:"cpu_limit"`
	TimeoutSeconds    int      `json:"timeout_seconds"`
}

// UpdateRequest is a partial patch; nil fields stay untouched.
type UpdateRequest struct {
	Name              *string   `json:"name"`
	DockerfileContent *string   `json:"dockerfile_content"`
	RunCommand        *[]string `json:"run_command"`
	Version           *string   `json:"version"`
	MemoryLimit       *string   `json:"memory_limit"`
	CPULimit          *string   `json:"cpu_limit"`
	TimeoutSeconds    *int      `json:"timeout_seconds"`
	Enabled           *bool     `json:"enabled"`
}

func (r *UpdateRequest) isEmpty() bool {
	return r.Name == nil && r.DockerfileContent == nil && r.RunCommand == nil &&
		r.Version == nil && r.MemoryLimit == nil && r.CPULimit == nil &&
		r.TimeoutSeconds == nil && r.Enabled == nil
}

// ImageTagFor derives the canonical image reference for a compiler id. The
// reference is fixed at creation and never changes.
func ImageTagFor(id string) string {
	return fmt.Sprintf("yantra-%s:latest", id)
}

// Create inserts a new compiler in pending state and enqueues its first
// image build. The row commits before the push.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Compiler, error) {
	compiler := models.Compiler{
		ID:                req.ID,
		Name:              req.Name,
		DockerfileContent: req.DockerfileContent,
		ImageTag:          ImageTagFor(req.ID),
		Version:           req.Version,
		MemoryLimit:       defaultString(req.MemoryLimit, "512m"),
		CPULimit:          defaultString(req.CPULimit, "1"),
		TimeoutSeconds:    defaultInt(req.TimeoutSeconds, 10),
		Enabled:           true,
		BuildStatus:       models.BuildStatusPending,
	}
	if err := compiler.SetRunCommand(req.RunCommand); err != nil {
		return nil, fmt.Errorf("invalid run command: %w", err)
	}

	// The primary key is the duplicate check; concurrent creates race to the
	// insert and exactly one wins.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&compiler).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: Compiler with id '%s' already exists", ErrDuplicateID, req.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create compiler: %w", err)
	}

	if err := s.broker.PushBuild(ctx, queue.BuildPayload{
		Action:     queue.ActionBuild,
		CompilerID: compiler.ID,
	}); err != nil {
		return nil, fmt.Errorf("failed to enqueue build: %w", err)
	}

	return &compiler, nil
}

// Get fetches a compiler by id.
func (s *Service) Get(ctx context.Context, id string) (*models.Compiler, error) {
	var compiler models.Compiler
	err := s.db.WithContext(ctx).First(&compiler, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: Compiler '%s' not found", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch compiler: %w", err)
	}
	return &compiler, nil
}

// List returns compilers newest first, optionally only enabled ones.
func (s *Service) List(ctx context.Context, enabledOnly bool) ([]models.Compiler, error) {
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	var compilers []models.Compiler
	if err := q.Find(&compilers).Error; err != nil {
		return nil, fmt.Errorf("failed to list compilers: %w", err)
	}
	return compilers, nil
}

// Update applies a partial patch. Mutating the Dockerfile or run command
// resets the build state machine to pending and enqueues exactly one build.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*models.Compiler, error) {
	if req.isEmpty() {
		return nil, fmt.Errorf("%w: No fields to update", ErrNothingToUpdate)
	}

	compiler, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	rebuild := false
	if req.Name != nil {
		compiler.Name = *req.Name
	}
	if req.DockerfileContent != nil {
		compiler.DockerfileContent = *req.DockerfileContent
		rebuild = true
	}
	if req.RunCommand != nil {
		if err := compiler.SetRunCommand(*req.RunCommand); err != nil {
			return nil, fmt.Errorf("invalid run command: %w", err)
		}
		rebuild = true
	}
	if req.Version != nil {
		compiler.Version = *req.Version
	}
	if req.MemoryLimit != nil {
		compiler.MemoryLimit = *req.MemoryLimit
	}
	if req.CPULimit != nil {
		compiler.CPULimit = *req.CPULimit
	}
	if req.TimeoutSeconds != nil {
		compiler.TimeoutSeconds = *req.TimeoutSeconds
	}
	if req.Enabled != nil {
		compiler.Enabled = *req.Enabled
	}

	if rebuild {
		compiler.BuildStatus = models.BuildStatusPending
		compiler.BuildError = nil
		compiler.BuiltAt = nil
	}
	compiler.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Save(compiler).Error
	}); err != nil {
		return nil, fmt.Errorf("failed to update compiler: %w", err)
	}

	if rebuild {
		if err := s.broker.PushBuild(ctx, queue.BuildPayload{
			Action:     queue.ActionBuild,
			CompilerID: id,
		}); err != nil {
			return nil, fmt.Errorf("failed to enqueue build: %w", err)
		}
	}

	return compiler, nil
}

// Delete removes a compiler and enqueues removal of its image. The row is
// gone even if the image cleanup later fails.
func (s *Service) Delete(ctx context.Context, id string) error {
	compiler, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Delete(&models.Compiler{}, "id = ?", id).Error
	}); err != nil {
		return fmt.Errorf("failed to delete compiler: %w", err)
	}

	if err := s.broker.PushBuild(ctx, queue.BuildPayload{
		Action:     queue.ActionCleanup,
		CompilerID: id,
		ImageTag:   compiler.ImageTag,
	}); err != nil {
		return fmt.Errorf("failed to enqueue cleanup: %w", err)
	}
	return nil
}

// TriggerBuild resets a compiler to pending and enqueues a rebuild. Used to
// retry failed builds.
func (s *Service) TriggerBuild(ctx context.Context, id string) error {
	compiler, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	compiler.BuildStatus = models.BuildStatusPending
	compiler.BuildError = nil
	compiler.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Save(compiler).Error
	}); err != nil {
		return fmt.Errorf("failed to reset build status: %w", err)
	}

	if err := s.broker.PushBuild(ctx, queue.BuildPayload{
		Action:     queue.ActionBuild,
		CompilerID: id,
	}); err != nil {
		return fmt.Errorf("failed to enqueue build: %w", err)
	}
	return nil
}

// BuildLogs is the build observability read model.
type BuildLogs struct {
	CompilerID   string     `json:"compiler_id"`
	CompilerName string     `json:"compiler_name"`
	BuildStatus  string     `json:"build_status"`
	BuildLogs    string     `json:"build_logs"`
	BuildError   *string    `json:"build_error"`
	BuiltAt      *time.Time `json:"built_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// GetBuildLogs returns the stored build output and state for a compiler.
func (s *Service) GetBuildLogs(ctx context.Context, id string) (*BuildLogs, error) {
	compiler, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	logs := "No build logs available"
	if compiler.BuildLogs != nil && *compiler.BuildLogs != "" {
		logs = *compiler.BuildLogs
	}

	return &BuildLogs{
		CompilerID:   compiler.ID,
		CompilerName: compiler.Name,
		BuildStatus:  compiler.BuildStatus,
		BuildLogs:    logs,
		BuildError:   compiler.BuildError,
		BuiltAt:      compiler.BuiltAt,
		UpdatedAt:    compiler.UpdatedAt,
	}, nil
}

func defaultString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
