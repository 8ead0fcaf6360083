// Package workflow implements the permit application operations on top of a store.Store.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"github.com/starford/permitflow/internal/apperr"
	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/store"
)

// Event kinds published after successful mutations.
const (
	EventApplicationCreated = "application.created"
	EventStepUpdated        = "step.updated"
	EventDocumentAppended   = "document.appended"
)

// Publisher is notified after each successful mutation.
type Publisher interface {
	PublishApplicationEvent(kind, applicationID string, stepNumber int)
}

// Service validates requests and applies them to the store.
type Service struct {
	store  store.Store
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.pub = p }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new workflow service.
func NewService(st store.Store, opts ...Option) *Service {
	s := &Service{
		store:  st,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateApplication opens a new application with the 12 template steps.
func (s *Service) CreateApplication(ctx context.Context, in CreateApplicationInput) (*models.Application, error) {
	if err := in.Validate(); err != nil {
		return nil, apperr.Validation(err)
	}
	app := models.NewApplication(in.ApplicationName, s.now())
	if err := s.store.InsertApplication(ctx, app); err != nil {
		return nil, err
	}
	s.logger.Info("application created",
		slog.String("id", app.ID),
		slog.String("name", app.ApplicationName))
	s.publish(EventApplicationCreated, app.ID, 0)
	return app, nil
}

// GetApplication returns one application by id.
func (s *Service) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return s.store.GetApplication(ctx, id)
}

// ListApplications returns every application matching f, in insertion order.
func (s *Service) ListApplications(ctx context.Context, f ListFilter) ([]models.Application, error) {
	apps, err := s.store.ListApplications(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Application, 0, len(apps))
	for i := range apps {
		if f.match(&apps[i]) {
			out = append(out, apps[i])
		}
	}
	return out, nil
}

// UpdateStepStatus sets the status of one step. Any transition is allowed.
func (s *Service) UpdateStepStatus(ctx context.Context, in UpdateStepStatusInput) error {
	if err := in.Validate(); err != nil {
		return apperr.Validation(err)
	}
	if err := s.store.SetStepStatus(ctx, in.ApplicationID, in.StepNumber, in.Status); err != nil {
		return err
	}
	s.logger.Debug("step status updated",
		slog.String("id", in.ApplicationID),
		slog.Int("step", in.StepNumber),
		slog.String("status", string(in.Status)))
	s.publish(EventStepUpdated, in.ApplicationID, in.StepNumber)
	return nil
}

// AppendDocument attaches a file name to one step. The step status is not changed.
func (s *Service) AppendDocument(ctx context.Context, in AppendDocumentInput) error {
	if err := in.Validate(); err != nil {
		return apperr.Validation(err)
	}
	doc := models.DocumentRef{FileName: in.FileName}
	if err := s.store.PushDocument(ctx, in.ApplicationID, in.StepNumber, doc); err != nil {
		return err
	}
	s.logger.Debug("document appended",
		slog.String("id", in.ApplicationID),
		slog.Int("step", in.StepNumber),
		slog.String("file", in.FileName))
	s.publish(EventDocumentAppended, in.ApplicationID, in.StepNumber)
	return nil
}

// Ready reports whether the backing store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) publish(kind, id string, step int) {
	if s.pub != nil {
		s.pub.PublishApplicationEvent(kind, id, step)
	}
}
