package templates

import (
	"context"
	"fmt"
	"testing"

	"yantra/internal/db"
	"yantra/pkg/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := db.NewSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String()))
	require.NoError(t, err)
	return database.DB
}

func TestSeedPopulatesCatalog(t *testing.T) {
	gdb := newTestDB(t)

	result, err := Seed(context.Background(), gdb)
	require.NoError(t, err)
	assert.Len(t, result.Added, len(Catalog))
	assert.Empty(t, result.Skipped)
	assert.Empty(t, result.Errors)

	var count int64
	require.NoError(t, gdb.Model(&models.DockerfileTemplate{}).Count(&count).Error)
	assert.Equal(t, int64(len(Catalog)), count)
}

func TestSeedIsIdempotent(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	_, err := Seed(ctx, gdb)
	require.NoError(t, err)

	result, err := Seed(ctx, gdb)
	require.NoError(t, err)
	assert.Empty(t, result.Added)
	assert.Len(t, result.Skipped, len(Catalog))
}

func TestSeedKeepsOperatorEdits(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	_, err := Seed(ctx, gdb)
	require.NoError(t, err)

	require.NoError(t, gdb.Model(&models.DockerfileTemplate{}).
		Where("id = ?", "python-3.12").
		Update("description", "pinned by ops").Error)

	_, err = Seed(ctx, gdb)
	require.NoError(t, err)

	svc := NewService(gdb)
	template, err := svc.Get(ctx, "python-3.12")
	require.NoError(t, err)
	assert.Equal(t, "pinned by ops", template.Description)
}

func TestSeededTemplatesDecodeRunCommands(t *testing.T) {
	gdb := newTestDB(t)

	_, err := Seed(context.Background(), gdb)
	require.NoError(t, err)

	svc := NewService(gdb)
	template, err := svc.Get(context.Background(), "python-3.12")
	require.NoError(t, err)

	argv, err := template.DefaultRunCommandArgv()
	require.NoError(t, err)
	assert.Equal(t, []string{"python", "-"}, argv)

	tags, err := template.TagList()
	require.NoError(t, err)
	assert.Contains(t, tags, "python")
}
