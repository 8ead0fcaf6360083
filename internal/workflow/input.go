package workflow

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/permitflow/internal/apperr"
	"github.com/starford/permitflow/internal/models"
)

const (
	maxNameLength     = 200
	maxFileNameLength = 255
)

// CreateApplicationInput is the request to open a new application.
type CreateApplicationInput struct {
	ApplicationName string `json:"applicationName"`
}

// Validate trims the name and checks it is present.
func (in *CreateApplicationInput) Validate() error {
	in.ApplicationName = strings.TrimSpace(in.ApplicationName)
	return validation.ValidateStruct(in,
		validation.Field(&in.ApplicationName, validation.Required, validation.RuneLength(1, maxNameLength)),
	)
}

// UpdateStepStatusInput is the request to change one step's status.
type UpdateStepStatusInput struct {
	ApplicationID string            `json:"id"`
	StepNumber    int               `json:"stepNumber"`
	Status        models.StepStatus `json:"newStatus"`
}

// Validate checks id shape, step presence and status membership. The step
// range is not checked here: an unknown step is reported as not found.
func (in *UpdateStepStatusInput) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.ApplicationID, validation.Required, is.MongoID),
		validation.Field(&in.StepNumber, validation.Required),
		validation.Field(&in.Status, validation.Required, validation.In(statusValues()...)),
	)
}

// AppendDocumentInput is the request to attach a file name to one step.
type AppendDocumentInput struct {
	ApplicationID string `json:"id"`
	StepNumber    int    `json:"stepNumber"`
	FileName      string `json:"fileName"`
}

// Validate checks id shape, step presence and file name.
func (in *AppendDocumentInput) Validate() error {
	in.FileName = strings.TrimSpace(in.FileName)
	return validation.ValidateStruct(in,
		validation.Field(&in.ApplicationID, validation.Required, is.MongoID),
		validation.Field(&in.StepNumber, validation.Required),
		validation.Field(&in.FileName, validation.Required, validation.RuneLength(1, maxFileNameLength)),
	)
}

// ListFilter narrows ListApplications. An empty Query matches everything.
type ListFilter struct {
	Query string
}

func (f ListFilter) match(app *models.Application) bool {
	q := strings.TrimSpace(f.Query)
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(app.ApplicationName), strings.ToLower(q))
}

func validateID(id string) error {
	err := validation.Errors{
		"id": validation.Validate(id, validation.Required, is.MongoID),
	}.Filter()
	if err != nil {
		return apperr.Validation(err)
	}
	return nil
}

func statusValues() []any {
	out := make([]any, len(models.Statuses))
	for i, s := range models.Statuses {
		out[i] = s
	}
	return out
}
