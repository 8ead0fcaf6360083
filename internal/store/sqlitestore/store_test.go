package sqlitestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/permitflow/internal/apperr"
	"github.com/starford/permitflow/internal/conncache"
	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/store"
	"github.com/starford/permitflow/internal/store/storetest"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "permitflow-test.db"), nil, nil)
	t.Cleanup(func() { s.Close(context.Background()) })
	return s
}

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return testStore(t) })
}

func TestLazyConnect(t *testing.T) {
	s := testStore(t)
	assert.Equal(t, conncache.Unconnected, s.cache.State())
	require.NoError(t, s.Ping(context.Background()))
	assert.Equal(t, conncache.Connected, s.cache.State())
}

func TestSchemaRejectsUnknownStatus(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	app := models.NewApplication("check", time.Now())
	require.NoError(t, s.InsertApplication(ctx, app))

	err := s.SetStepStatus(ctx, app.ID, 1, models.StepStatus("Done"))
	assert.ErrorIs(t, err, apperr.ErrStore)
	assert.Equal(t, models.StatusNotStarted, mustGet(t, s, app.ID).Step(1).Status)
}

func TestInsertIsAtomic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	app := models.NewApplication("dup steps", time.Now())
	app.ProcessSteps = append(app.ProcessSteps, app.ProcessSteps[0])

	err := s.InsertApplication(ctx, app)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrStore)

	_, err = s.GetApplication(ctx, app.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	ctx := context.Background()

	first := New(path, nil, nil)
	app := models.NewApplication("persisted", time.Now())
	require.NoError(t, first.InsertApplication(ctx, app))
	require.NoError(t, first.PushDocument(ctx, app.ID, 12, models.DocumentRef{FileName: "permit.pdf"}))
	require.NoError(t, first.Close(ctx))

	second := New(path, nil, nil)
	t.Cleanup(func() { second.Close(ctx) })
	got := mustGet(t, second, app.ID)
	assert.Equal(t, "persisted", got.ApplicationName)
	assert.Len(t, got.Step(12).Documents, 1)
}

func TestDialFailureIsConnectionError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	// A path below a regular file cannot be created.
	s := New(filepath.Join(blocker, "db.sqlite"), nil, nil)
	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrConnection)
	assert.Equal(t, conncache.Unconnected, s.cache.State())
}

func TestMissingPathIsConfigurationError(t *testing.T) {
	s := New("", nil, nil)
	err := s.Ping(context.Background())
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

func mustGet(t *testing.T, s *Store, id string) *models.Application {
	t.Helper()
	app, err := s.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app
}
