package templates

import (
	"context"
	"fmt"

	"yantra/internal/logging"
	"yantra/pkg/models"

	"gorm.io/gorm"
)

// SeedResult summarizes one seeding pass.
type SeedResult struct {
	Added   []string `json:"added"`
	Skipped []string `json:"skipped"`
	Errors  []string `json:"errors"`
}

// Seed inserts every catalog definition whose id is not already present.
// Existing rows are left untouched so operator edits survive restarts. All
// inserts happen in a single transaction; if the commit fails the whole
// batch rolls back. Running Seed twice is a no-op the second time.
func Seed(ctx context.Context, db *gorm.DB) (SeedResult, error) {
	result := SeedResult{
		Added:   []string{},
		Skipped: []string{},
		Errors:  []string{},
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, def := range Catalog {
			var count int64
			if err := tx.Model(&models.DockerfileTemplate{}).Where("id = ?", def.ID).Count(&count).Error; err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", def.ID, err))
				return err
			}
			if count > 0 {
				result.Skipped = append(result.Skipped, def.ID)
				continue
			}

			template := models.DockerfileTemplate{
				ID:                 def.ID,
				Name:               def.Name,
				Description:        def.Description,
				Category:           def.Category,
				DockerfileTemplate: def.Dockerfile,
				DefaultRunCommand:  marshalList(def.DefaultRunCommand),
				Tags:               marshalList(def.Tags),
				Icon:               def.Icon,
				Author:             def.Author,
				IsOfficial:         def.IsOfficial,
			}
			if err := tx.Create(&template).Error; err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", def.ID, err))
				return err
			}
			result.Added = append(result.Added, def.ID)
		}
		return nil
	})

	if err != nil {
		// Nothing committed; report the batch as failed.
		result.Added = []string{}
		return result, fmt.Errorf("template seeding failed: %w", err)
	}

	logging.S().Infow("template catalog seeded",
		"added", len(result.Added), "skipped", len(result.Skipped))
	return result, nil
}
