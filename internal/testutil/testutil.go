// Package testutil provides shared test helpers for setting up stores and services.
package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/permitflow/internal/store/sqlitestore"
	"github.com/starford/permitflow/internal/workflow"
)

// TestStore creates a SQLite store in a temp directory that is closed on cleanup.
func TestStore(t *testing.T) *sqlitestore.Store {
	t.Helper()
	s := sqlitestore.New(filepath.Join(t.TempDir(), "permitflow-test.db"), nil, nil)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// TestService creates a workflow service backed by TestStore.
func TestService(t *testing.T, opts ...workflow.Option) *workflow.Service {
	t.Helper()
	return workflow.NewService(TestStore(t), opts...)
}
