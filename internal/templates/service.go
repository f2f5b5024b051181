// Yantra template service
// CRUD over the curated Dockerfile template catalog. Templates are inert
// and never enqueue builds.

package templates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"yantra/pkg/models"

	"gorm.io/gorm"
)

// Service errors. Handlers map ErrNotFound to 404 and ErrDuplicateID to 400.
var (
	ErrDuplicateID = errors.New("template id already exists")
	ErrNotFound    = errors.New("template not found")
)

// Service manages Dockerfile templates.
type Service struct {
	db *gorm.DB
}

// NewService wires the template service.
func NewService(db *gorm.DB) *Service {
	return &Service{db: db}
}

// CreateRequest carries a new template.
type CreateRequest struct {
	ID                 string   `json:"id" binding:"required"`
	Name               string   `json:"name" binding:"required"`
	Description        string   `json:"description"`
	Category           string   `json:"category"`
	DockerfileTemplate string   `json:"dockerfile_template" binding:"required"`
	DefaultRunCommand  []string `json:"default_run_command"`
	Tags               []string `json:"tags"`
	Icon               string   `json:"icon"`
	Author             string   `json:"author"`
	IsOfficial         bool     `json:"is_official"`
}

// Create inserts a new template.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.DockerfileTemplate, error) {
	template := models.DockerfileTemplate{
		ID:                 req.ID,
		Name:               req.Name,
		Description:        req.Description,
		Category:           req.Category,
		DockerfileTemplate: req.DockerfileTemplate,
		Icon:               req.Icon,
		Author:             defaultAuthor(req.Author),
		IsOfficial:         req.IsOfficial,
	}
	if run := marshalList(req.DefaultRunCommand); run != nil {
		template.DefaultRunCommand = run
	}
	if tags := marshalList(req.Tags); tags != nil {
		template.Tags = tags
	}

	// The primary key is the duplicate check; concurrent creates race to the
	// insert and exactly one wins.
	err := s.db.WithContext(ctx).Create(&template).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, fmt.Errorf("%w: Template with id '%s' already exists", ErrDuplicateID, req.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}
	return &template, nil
}

// Get fetches a template by id.
func (s *Service) Get(ctx context.Context, id string) (*models.DockerfileTemplate, error) {
	var template models.DockerfileTemplate
	err := s.db.WithContext(ctx).First(&template, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: Template '%s' not found", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch template: %w", err)
	}
	return &template, nil
}

// List returns templates ordered by name, filtered by category and
// official flag when requested.
func (s *Service) List(ctx context.Context, category string, officialOnly bool) ([]models.DockerfileTemplate, error) {
	q := s.db.WithContext(ctx).Order("name")
	if category != "" {
		q = q.Where("category = ?", category)
	}
	if officialOnly {
		q = q.Where("is_official = ?", true)
	}
	var templates []models.DockerfileTemplate
	if err := q.Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	return templates, nil
}

// Delete removes a template.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.DockerfileTemplate{}, "id = ?", id).Error; err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}
	return nil
}

func marshalList(values []string) *string {
	if len(values) == 0 {
		return nil
	}
	data, err := json.Marshal(values)
	if err != nil {
		return nil
	}
	s := string(data)
	return &s
}

func defaultAuthor(author string) string {
	if author == "" {
		return "yantra"
	}
	return author
}
