// Package store defines the persistence contract for permit applications.
package store

import (
	"context"

	"github.com/starford/permitflow/internal/models"
)

// Store persists Application aggregates. Implementations must apply every
// mutation as a single atomic operation scoped to one application.
type Store interface {
	// InsertApplication persists a new aggregate in one write.
	InsertApplication(ctx context.Context, app *models.Application) error
	// GetApplication returns the aggregate with the given id or apperr.ErrNotFound.
	GetApplication(ctx context.Context, id string) (*models.Application, error)
	// ListApplications returns every aggregate in insertion order.
	ListApplications(ctx context.Context) ([]models.Application, error)
	// SetStepStatus sets the status of the step matching (id, step).
	// It returns apperr.ErrNotFound when no application has that step.
	SetStepStatus(ctx context.Context, id string, step int, status models.StepStatus) error
	// PushDocument appends doc to the step matching (id, step).
	// It returns apperr.ErrNotFound when no application has that step.
	PushDocument(ctx context.Context, id string, step int, doc models.DocumentRef) error
	// Ping acquires the connection and checks that the store answers.
	Ping(ctx context.Context) error
	// Close releases the underlying connection.
	Close(ctx context.Context) error
}
