package store

import (
	"context"
	"time"

	"github.com/starford/permitflow/internal/models"
)

// Observer receives the outcome of every store operation.
type Observer interface {
	ObserveStoreOp(op string, err error, elapsed time.Duration)
}

type instrumented struct {
	next Store
	obs  Observer
}

// Instrument wraps s so that each operation is reported to obs.
func Instrument(s Store, obs Observer) Store {
	if obs == nil {
		return s
	}
	return &instrumented{next: s, obs: obs}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.obs.ObserveStoreOp(op, err, time.Since(start))
}

func (i *instrumented) InsertApplication(ctx context.Context, app *models.Application) error {
	start := time.Now()
	err := i.next.InsertApplication(ctx, app)
	i.observe("insert_application", start, err)
	return err
}

func (i *instrumented) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	start := time.Now()
	app, err := i.next.GetApplication(ctx, id)
	i.observe("get_application", start, err)
	return app, err
}

func (i *instrumented) ListApplications(ctx context.Context) ([]models.Application, error) {
	start := time.Now()
	apps, err := i.next.ListApplications(ctx)
	i.observe("list_applications", start, err)
	return apps, err
}

func (i *instrumented) SetStepStatus(ctx context.Context, id string, step int, status models.StepStatus) error {
	start := time.Now()
	err := i.next.SetStepStatus(ctx, id, step, status)
	i.observe("set_step_status", start, err)
	return err
}

func (i *instrumented) PushDocument(ctx context.Context, id string, step int, doc models.DocumentRef) error {
	start := time.Now()
	err := i.next.PushDocument(ctx, id, step, doc)
	i.observe("push_document", start, err)
	return err
}

func (i *instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := i.next.Ping(ctx)
	i.observe("ping", start, err)
	return err
}

func (i *instrumented) Close(ctx context.Context) error {
	return i.next.Close(ctx)
}
