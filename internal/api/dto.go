package api

import "github.com/starford/permitflow/internal/models"

// CreateApplicationRequest is the request body for opening an application.
type CreateApplicationRequest struct {
	ApplicationName string `json:"applicationName" example:"North Ridge Quarry" validate:"required"`
}

// UpdateStepStatusRequest is the request body for changing one step's status.
type UpdateStepStatusRequest struct {
	StepNumber int               `json:"stepNumber" example:"3" validate:"required"`
	NewStatus  models.StepStatus `json:"newStatus" example:"In Progress" validate:"required"`
}

// AppendDocumentRequest is the request body for attaching a file name to a step.
type AppendDocumentRequest struct {
	StepNumber int    `json:"stepNumber" example:"1" validate:"required"`
	FileName   string `json:"fileName" example:"aadhaar.pdf" validate:"required"`
}

// MessageResponse acknowledges a step mutation.
type MessageResponse struct {
	Message string `json:"message" example:"Status updated successfully" validate:"required"`
}

// ApplicationView is an application plus the dashboard progress figures.
type ApplicationView struct {
	*models.Application
	CompletedSteps int `json:"completedSteps" example:"4"`
	Progress       int `json:"progress" example:"33"`
}

func newApplicationView(app *models.Application) ApplicationView {
	return ApplicationView{
		Application:    app,
		CompletedSteps: app.CompletedSteps(),
		Progress:       app.Progress(),
	}
}
