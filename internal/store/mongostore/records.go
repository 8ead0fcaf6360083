package mongostore

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/starford/permitflow/internal/models"
)

// applicationRecord is the persisted shape: one document per application
// with steps and documents embedded.
type applicationRecord struct {
	ID              primitive.ObjectID `bson:"_id"`
	ApplicationName string             `bson:"applicationName"`
	CreatedAt       time.Time          `bson:"createdAt"`
	ProcessSteps    []stepRecord       `bson:"processSteps"`
}

type stepRecord struct {
	StepNumber int              `bson:"stepNumber"`
	StepTitle  string           `bson:"stepTitle"`
	Status     string           `bson:"status"`
	Documents  []documentRecord `bson:"documents"`
	Notes      string           `bson:"notes"`
}

type documentRecord struct {
	FileName   string     `bson:"fileName"`
	FilePath   string     `bson:"filePath,omitempty"`
	UploadedAt *time.Time `bson:"uploadedAt,omitempty"`
}

func toRecord(app *models.Application) (*applicationRecord, error) {
	oid, err := primitive.ObjectIDFromHex(app.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid application id %q: %w", app.ID, err)
	}
	steps := make([]stepRecord, len(app.ProcessSteps))
	for i, s := range app.ProcessSteps {
		// documents must be an array, never null, or $push fails on it.
		docs := make([]documentRecord, len(s.Documents))
		for j, d := range s.Documents {
			docs[j] = documentRecord(d)
		}
		steps[i] = stepRecord{
			StepNumber: s.StepNumber,
			StepTitle:  s.StepTitle,
			Status:     string(s.Status),
			Documents:  docs,
			Notes:      s.Notes,
		}
	}
	return &applicationRecord{
		ID:              oid,
		ApplicationName: app.ApplicationName,
		CreatedAt:       app.CreatedAt,
		ProcessSteps:    steps,
	}, nil
}

func fromRecord(r *applicationRecord) models.Application {
	steps := make([]models.ProcessStep, len(r.ProcessSteps))
	for i, s := range r.ProcessSteps {
		docs := make([]models.DocumentRef, len(s.Documents))
		for j, d := range s.Documents {
			docs[j] = models.DocumentRef(d)
		}
		steps[i] = models.ProcessStep{
			StepNumber: s.StepNumber,
			StepTitle:  s.StepTitle,
			Status:     models.StepStatus(s.Status),
			Documents:  docs,
			Notes:      s.Notes,
		}
	}
	return models.Application{
		ID:              r.ID.Hex(),
		ApplicationName: r.ApplicationName,
		CreatedAt:       r.CreatedAt.UTC(),
		ProcessSteps:    steps,
	}
}
