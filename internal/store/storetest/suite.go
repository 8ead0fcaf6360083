// Package storetest is a conformance suite every store.Store implementation must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/permitflow/internal/apperr"
	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/store"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"InsertAndGet", testInsertAndGet},
		{"GetMissing", testGetMissing},
		{"ListInsertionOrder", testListInsertionOrder},
		{"ListEmpty", testListEmpty},
		{"SetStepStatus", testSetStepStatus},
		{"SetStepStatusAnyTransition", testSetStepStatusAnyTransition},
		{"SetStepStatusNotFound", testSetStepStatusNotFound},
		{"PushDocumentKeepsDuplicates", testPushDocumentKeepsDuplicates},
		{"PushDocumentNotFound", testPushDocumentNotFound},
		{"ConcurrentDisjointUpdates", testConcurrentDisjointUpdates},
		{"Scenario", testScenario},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func insert(t *testing.T, s store.Store, name string) *models.Application {
	t.Helper()
	app := models.NewApplication(name, time.Now())
	require.NoError(t, s.InsertApplication(context.Background(), app))
	return app
}

func get(t *testing.T, s store.Store, id string) *models.Application {
	t.Helper()
	app, err := s.GetApplication(context.Background(), id)
	require.NoError(t, err)
	return app
}

func testInsertAndGet(t *testing.T, s store.Store) {
	app := insert(t, s, "Green Valley Quarry")
	got := get(t, s, app.ID)

	assert.Equal(t, app.ID, got.ID)
	assert.Equal(t, "Green Valley Quarry", got.ApplicationName)
	assert.WithinDuration(t, app.CreatedAt, got.CreatedAt, time.Millisecond)
	require.Len(t, got.ProcessSteps, len(models.Template))
	for i, step := range got.ProcessSteps {
		assert.Equal(t, models.Template[i].StepNumber, step.StepNumber)
		assert.Equal(t, models.Template[i].StepTitle, step.StepTitle)
		assert.Equal(t, models.StatusNotStarted, step.Status)
		assert.NotNil(t, step.Documents)
		assert.Empty(t, step.Documents)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.GetApplication(context.Background(), models.NewID())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func testListInsertionOrder(t *testing.T, s store.Store) {
	names := []string{"Alpha Quarry", "Beta Quarry", "Gamma Quarry"}
	for _, n := range names {
		insert(t, s, n)
	}
	apps, err := s.ListApplications(context.Background())
	require.NoError(t, err)
	require.Len(t, apps, len(names))
	for i, a := range apps {
		assert.Equal(t, names[i], a.ApplicationName)
		assert.Len(t, a.ProcessSteps, len(models.Template))
	}
}

func testListEmpty(t *testing.T, s store.Store) {
	apps, err := s.ListApplications(context.Background())
	require.NoError(t, err)
	assert.Empty(t, apps)
}

func testSetStepStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	for step := 1; step <= len(models.Template); step++ {
		app := insert(t, s, "status")
		require.NoError(t, s.SetStepStatus(ctx, app.ID, step, models.StatusCompleted))

		got := get(t, s, app.ID)
		for _, st := range got.ProcessSteps {
			if st.StepNumber == step {
				assert.Equal(t, models.StatusCompleted, st.Status, "step %d", step)
			} else {
				assert.Equal(t, models.StatusNotStarted, st.Status, "step %d untouched", st.StepNumber)
			}
		}
	}
}

func testSetStepStatusAnyTransition(t *testing.T, s store.Store) {
	ctx := context.Background()
	app := insert(t, s, "transitions")
	for _, status := range []models.StepStatus{
		models.StatusCompleted,
		models.StatusNotStarted,
		models.StatusInProgress,
		models.StatusInProgress,
	} {
		require.NoError(t, s.SetStepStatus(ctx, app.ID, 4, status))
		assert.Equal(t, status, get(t, s, app.ID).Step(4).Status)
	}
}

func testSetStepStatusNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	app := insert(t, s, "missing step")

	err := s.SetStepStatus(ctx, app.ID, 13, models.StatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = s.SetStepStatus(ctx, app.ID, 0, models.StatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = s.SetStepStatus(ctx, models.NewID(), 1, models.StatusCompleted)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	for _, st := range get(t, s, app.ID).ProcessSteps {
		assert.Equal(t, models.StatusNotStarted, st.Status)
	}
}

func testPushDocumentKeepsDuplicates(t *testing.T, s store.Store) {
	ctx := context.Background()
	app := insert(t, s, "documents")

	require.NoError(t, s.PushDocument(ctx, app.ID, 1, models.DocumentRef{FileName: "permit.pdf"}))
	require.NoError(t, s.PushDocument(ctx, app.ID, 1, models.DocumentRef{FileName: "map.png"}))
	require.NoError(t, s.PushDocument(ctx, app.ID, 1, models.DocumentRef{FileName: "permit.pdf"}))

	got := get(t, s, app.ID)
	step := got.Step(1)
	require.NotNil(t, step)
	require.Len(t, step.Documents, 3)
	assert.Equal(t, "permit.pdf", step.Documents[0].FileName)
	assert.Equal(t, "map.png", step.Documents[1].FileName)
	assert.Equal(t, "permit.pdf", step.Documents[2].FileName)
	assert.Empty(t, step.Documents[0].FilePath)
	assert.Nil(t, step.Documents[0].UploadedAt)
	assert.Equal(t, models.StatusNotStarted, step.Status)

	for _, st := range got.ProcessSteps[1:] {
		assert.Empty(t, st.Documents)
	}
}

func testPushDocumentNotFound(t *testing.T, s store.Store) {
	ctx := context.Background()
	app := insert(t, s, "missing")

	err := s.PushDocument(ctx, app.ID, 99, models.DocumentRef{FileName: "a.pdf"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	err = s.PushDocument(ctx, models.NewID(), 1, models.DocumentRef{FileName: "a.pdf"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	for _, st := range get(t, s, app.ID).ProcessSteps {
		assert.Empty(t, st.Documents)
	}
}

func testConcurrentDisjointUpdates(t *testing.T, s store.Store) {
	ctx := context.Background()
	app := insert(t, s, "concurrent")

	const rounds = 10
	var wg sync.WaitGroup
	errs := make(chan error, 2*rounds)
	for i := 0; i < rounds; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs <- s.SetStepStatus(ctx, app.ID, 2, models.StatusInProgress)
		}()
		go func() {
			defer wg.Done()
			errs <- s.PushDocument(ctx, app.ID, 3, models.DocumentRef{FileName: "fee-receipt.pdf"})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got := get(t, s, app.ID)
	assert.Equal(t, models.StatusInProgress, got.Step(2).Status)
	assert.Empty(t, got.Step(2).Documents)
	assert.Len(t, got.Step(3).Documents, rounds)
	assert.Equal(t, models.StatusNotStarted, got.Step(3).Status)
}

func testScenario(t *testing.T, s store.Store) {
	ctx := context.Background()
	app := insert(t, s, "Green Valley Quarry")

	require.NoError(t, s.SetStepStatus(ctx, app.ID, 1, models.StatusInProgress))
	require.NoError(t, s.PushDocument(ctx, app.ID, 1, models.DocumentRef{FileName: "survey.pdf"}))
	require.NoError(t, s.SetStepStatus(ctx, app.ID, 1, models.StatusCompleted))

	got := get(t, s, app.ID)
	step1 := got.Step(1)
	assert.Equal(t, models.StatusCompleted, step1.Status)
	assert.Equal(t, []models.DocumentRef{{FileName: "survey.pdf"}}, step1.Documents)
	for _, st := range got.ProcessSteps[1:] {
		assert.Equal(t, models.StatusNotStarted, st.Status)
		assert.Empty(t, st.Documents)
	}
}
