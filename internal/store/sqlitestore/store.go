// Package sqlitestore implements store.Store on an embedded SQLite database.
//
// Steps and documents live in their own tables keyed by (application_id,
// step_number); each mutation is one statement, so the affected-row count
// tells whether the (application, step) pair exists.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/permitflow/internal/apperr"
	"github.com/starford/permitflow/internal/conncache"
	"github.com/starford/permitflow/internal/models"
	"github.com/starford/permitflow/internal/store"
)

// Verify *Store satisfies store.Store at compile time.
var _ store.Store = (*Store)(nil)

// Store is the SQLite-backed application store.
type Store struct {
	cache *conncache.Cache[*sql.DB]
}

// New creates a store for the database file at path. The file is opened on
// first use.
func New(path string, logger *slog.Logger, obs conncache.Observer) *Store {
	opts := []conncache.Option[*sql.DB]{
		conncache.WithClose(func(_ context.Context, db *sql.DB) error { return db.Close() }),
	}
	if logger != nil {
		opts = append(opts, conncache.WithLogger[*sql.DB](logger))
	}
	if obs != nil {
		opts = append(opts, conncache.WithObserver[*sql.DB](obs))
	}
	return &Store{cache: conncache.New("sqlite", path, Dial, opts...)}
}

// Dial opens (or creates) the database file and applies the schema.
func Dial(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: apply schema: %w", err)
	}
	return db, nil
}

// Ping acquires the connection and checks it.
func (s *Store) Ping(ctx context.Context) error {
	db, err := s.cache.Acquire(ctx)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return apperr.Store("sqlitestore: ping", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close(ctx context.Context) error {
	return s.cache.Close(ctx)
}

// InsertApplication writes the application row and its steps in one transaction.
func (s *Store) InsertApplication(ctx context.Context, app *models.Application) error {
	const op = "sqlitestore: insert application"
	db, err := s.cache.Acquire(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Store(op, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO applications (id, application_name, created_at) VALUES (?, ?, ?)`,
		app.ID, app.ApplicationName, app.CreatedAt,
	); err != nil {
		return apperr.Store(op, err)
	}

	stepStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO process_steps (application_id, step_number, step_title, status, notes) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.Store(op, err)
	}
	defer stepStmt.Close()

	docStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO step_documents (application_id, step_number, file_name, file_path, uploaded_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return apperr.Store(op, err)
	}
	defer docStmt.Close()

	for _, step := range app.ProcessSteps {
		if _, err := stepStmt.ExecContext(ctx, app.ID, step.StepNumber, step.StepTitle, string(step.Status), step.Notes); err != nil {
			return apperr.Store(op, err)
		}
		for _, doc := range step.Documents {
			if _, err := docStmt.ExecContext(ctx, app.ID, step.StepNumber, doc.FileName, doc.FilePath, nullTime(doc.UploadedAt)); err != nil {
				return apperr.Store(op, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Store(op, err)
	}
	return nil
}

// GetApplication loads one aggregate from a single read snapshot.
func (s *Store) GetApplication(ctx context.Context, id string) (*models.Application, error) {
	const op = "sqlitestore: get application"
	db, err := s.cache.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	defer tx.Rollback() //nolint:errcheck // read only

	var app models.Application
	err = tx.QueryRowContext(ctx,
		`SELECT id, application_name, created_at FROM applications WHERE id = ?`, id,
	).Scan(&app.ID, &app.ApplicationName, &app.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound(op)
	}
	if err != nil {
		return nil, apperr.Store(op, err)
	}

	apps := []*models.Application{&app}
	if err := loadSteps(ctx, tx, apps, `WHERE application_id = ?`, id); err != nil {
		return nil, apperr.Store(op, err)
	}
	return &app, nil
}

// ListApplications loads every aggregate in insertion order.
func (s *Store) ListApplications(ctx context.Context) ([]models.Application, error) {
	const op = "sqlitestore: list applications"
	db, err := s.cache.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	defer tx.Rollback() //nolint:errcheck // read only

	rows, err := tx.QueryContext(ctx, `SELECT id, application_name, created_at FROM applications ORDER BY rowid`)
	if err != nil {
		return nil, apperr.Store(op, err)
	}
	var out []models.Application
	for rows.Next() {
		var app models.Application
		if err := rows.Scan(&app.ID, &app.ApplicationName, &app.CreatedAt); err != nil {
			rows.Close()
			return nil, apperr.Store(op, err)
		}
		out = append(out, app)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, apperr.Store(op, err)
	}

	ptrs := make([]*models.Application, len(out))
	for i := range out {
		ptrs[i] = &out[i]
	}
	if err := loadSteps(ctx, tx, ptrs, ""); err != nil {
		return nil, apperr.Store(op, err)
	}
	if out == nil {
		out = []models.Application{}
	}
	return out, nil
}

// SetStepStatus updates one step's status in a single statement.
func (s *Store) SetStepStatus(ctx context.Context, id string, step int, status models.StepStatus) error {
	const op = "sqlitestore: set step status"
	db, err := s.cache.Acquire(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx,
		`UPDATE process_steps SET status = ? WHERE application_id = ? AND step_number = ?`,
		string(status), id, step,
	)
	if err != nil {
		return apperr.Store(op, err)
	}
	return requireMatch(op, res)
}

// PushDocument appends a document row only if the (id, step) pair exists.
func (s *Store) PushDocument(ctx context.Context, id string, step int, doc models.DocumentRef) error {
	const op = "sqlitestore: push document"
	db, err := s.cache.Acquire(ctx)
	if err != nil {
		return err
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO step_documents (application_id, step_number, file_name, file_path, uploaded_at)
		SELECT application_id, step_number, ?, ?, ?
		FROM process_steps
		WHERE application_id = ? AND step_number = ?
	`, doc.FileName, doc.FilePath, nullTime(doc.UploadedAt), id, step)
	if err != nil {
		return apperr.Store(op, err)
	}
	return requireMatch(op, res)
}

func requireMatch(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.Store(op, err)
	}
	if n == 0 {
		return apperr.NotFound(op)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// loadSteps fills ProcessSteps (and their documents) for apps. where and args
// restrict both the step and the document queries.
func loadSteps(ctx context.Context, q querier, apps []*models.Application, where string, args ...any) error {
	byID := make(map[string]*models.Application, len(apps))
	for _, a := range apps {
		a.ProcessSteps = []models.ProcessStep{}
		byID[a.ID] = a
	}

	rows, err := q.QueryContext(ctx, `
		SELECT application_id, step_number, step_title, status, notes
		FROM process_steps `+where+`
		ORDER BY application_id, step_number`, args...)
	if err != nil {
		return fmt.Errorf("query steps: %w", err)
	}
	for rows.Next() {
		var (
			appID  string
			step   models.ProcessStep
			status string
		)
		if err := rows.Scan(&appID, &step.StepNumber, &step.StepTitle, &status, &step.Notes); err != nil {
			rows.Close()
			return fmt.Errorf("scan step: %w", err)
		}
		step.Status = models.StepStatus(status)
		step.Documents = []models.DocumentRef{}
		if a, ok := byID[appID]; ok {
			a.ProcessSteps = append(a.ProcessSteps, step)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate steps: %w", err)
	}

	rows, err = q.QueryContext(ctx, `
		SELECT application_id, step_number, file_name, file_path, uploaded_at
		FROM step_documents `+where+`
		ORDER BY id`, args...)
	if err != nil {
		return fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			appID    string
			stepNum  int
			doc      models.DocumentRef
			uploaded sql.NullTime
		)
		if err := rows.Scan(&appID, &stepNum, &doc.FileName, &doc.FilePath, &uploaded); err != nil {
			return fmt.Errorf("scan document: %w", err)
		}
		if uploaded.Valid {
			t := uploaded.Time
			doc.UploadedAt = &t
		}
		a, ok := byID[appID]
		if !ok {
			continue
		}
		if st := a.Step(stepNum); st != nil {
			st.Documents = append(st.Documents, doc)
		}
	}
	return rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
