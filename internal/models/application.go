// Package models defines the domain types for permitflow.
package models

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StepStatus is the progress state of a single process step.
type StepStatus string

const (
	StatusNotStarted StepStatus = "Not Started"
	StatusInProgress StepStatus = "In Progress"
	StatusCompleted  StepStatus = "Completed"
)

// Statuses lists every accepted StepStatus.
var Statuses = []StepStatus{StatusNotStarted, StatusInProgress, StatusCompleted}

// Valid reports whether s is one of the enumerated statuses.
func (s StepStatus) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

// Application is a permit application and its ordered process steps.
type Application struct {
	ID              string        `json:"_id"`
	ApplicationName string        `json:"applicationName"`
	CreatedAt       time.Time     `json:"createdAt"`
	ProcessSteps    []ProcessStep `json:"processSteps"`
}

// ProcessStep is one entry of an application's workflow.
type ProcessStep struct {
	StepNumber int           `json:"stepNumber"`
	StepTitle  string        `json:"stepTitle"`
	Status     StepStatus    `json:"status"`
	Documents  []DocumentRef `json:"documents"`
	Notes      string        `json:"notes"`
}

// DocumentRef records the display name of a file attached to a step.
// FilePath and UploadedAt are reserved and never populated.
type DocumentRef struct {
	FileName   string     `json:"fileName"`
	FilePath   string     `json:"filePath,omitempty"`
	UploadedAt *time.Time `json:"uploadedAt,omitempty"`
}

// StepTemplate is a (number, title) pair of the canonical workflow.
type StepTemplate struct {
	StepNumber int    `json:"stepNumber"`
	StepTitle  string `json:"stepTitle"`
}

// Template is the fixed 12-step permit workflow every application starts with.
var Template = []StepTemplate{
	{1, "Document for applicant (upload)"},
	{2, "Submission of application fee"},
	{3, "V.A.O, RI, Thasildar RDO reports"},
	{4, "Soil test letter from AD Mines"},
	{5, "Pay fees to Anna University"},
	{6, "Upload soil test report"},
	{7, "Receive Mining Plan from AD Mines"},
	{8, "Upload affidavits from Notary"},
	{9, "Upload Work Order & Company Details"},
	{10, "Receive Proceedings from AD Mines"},
	{11, "Pay final govt fees (4 fields)"},
	{12, "Permit Issued (upload)"},
}

// NewApplication builds a fresh aggregate with a generated id and the template steps.
func NewApplication(name string, now time.Time) *Application {
	steps := make([]ProcessStep, len(Template))
	for i, t := range Template {
		steps[i] = ProcessStep{
			StepNumber: t.StepNumber,
			StepTitle:  t.StepTitle,
			Status:     StatusNotStarted,
			Documents:  []DocumentRef{},
			Notes:      "",
		}
	}
	return &Application{
		ID:              NewID(),
		ApplicationName: name,
		CreatedAt:       now.UTC(),
		ProcessSteps:    steps,
	}
}

// Step returns the step with the given number, or nil.
func (a *Application) Step(number int) *ProcessStep {
	for i := range a.ProcessSteps {
		if a.ProcessSteps[i].StepNumber == number {
			return &a.ProcessSteps[i]
		}
	}
	return nil
}

// CompletedSteps counts steps whose status is Completed.
func (a *Application) CompletedSteps() int {
	n := 0
	for _, s := range a.ProcessSteps {
		if s.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// Progress is the completed share of steps as a rounded percentage.
func (a *Application) Progress() int {
	if len(a.ProcessSteps) == 0 {
		return 0
	}
	return int(math.Round(float64(a.CompletedSteps()) / float64(len(a.ProcessSteps)) * 100))
}

// NewID returns a new 24-hex-character object identifier.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether id is a well-formed object identifier.
func ValidID(id string) bool {
	_, err := primitive.ObjectIDFromHex(id)
	return err == nil
}
