// Package store persists predictions and user feedback in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

type Prediction struct {
	ID            string
	Subject       string
	Text          string
	Category      int
	Label         string
	Confidence    float64
	Probabilities []float64
	ModelVersion  string
	CreatedAt     time.Time
}

type Feedback struct {
	ID           string
	PredictionID string
	Subject      string
	Text         string
	Predicted    string
	Expected     string
	CreatedAt    time.Time
}

// LabelCount is the number of logged predictions for one label.
type LabelCount struct {
	Label string
	Count int
}

const schema = `
CREATE TABLE IF NOT EXISTS predictions (
	id            TEXT PRIMARY KEY,
	subject       TEXT NOT NULL,
	text          TEXT NOT NULL,
	category      INTEGER NOT NULL,
	label         TEXT NOT NULL,
	confidence    REAL NOT NULL,
	probabilities TEXT NOT NULL,
	model_version TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS predictions_created_at ON predictions (created_at);
CREATE TABLE IF NOT EXISTS feedback (
	id            TEXT PRIMARY KEY,
	prediction_id TEXT NOT NULL,
	subject       TEXT NOT NULL,
	text          TEXT NOT NULL,
	predicted     TEXT NOT NULL,
	expected      TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);
`

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	// One writer avoids SQLITE_BUSY from concurrent request goroutines.
	db.SetMaxOpenConns(1)
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) SavePrediction(ctx context.Context, p Prediction) error {
	probs, err := json.Marshal(p.Probabilities)
	if err != nil {
		return fmt.Errorf("encode probabilities: %w", err)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO predictions (id, subject, text, category, label, confidence, probabilities, model_version, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`, p.ID, p.Subject, p.Text, p.Category, p.Label, p.Confidence, string(probs), p.ModelVersion, p.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("save prediction: %w", err)
	}
	return nil
}

func (s *Store) GetPrediction(ctx context.Context, id string) (Prediction, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, subject, text, category, label, confidence, probabilities, model_version, created_at
FROM predictions
WHERE id = ?
`, id)
	p, err := scanPrediction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Prediction{}, fmt.Errorf("%w: prediction %s", ErrNotFound, id)
		}
		return Prediction{}, fmt.Errorf("get prediction: %w", err)
	}
	return p, nil
}

// RecentPredictions returns up to limit predictions, newest first.
func (s *Store) RecentPredictions(ctx context.Context, limit int) ([]Prediction, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, subject, text, category, label, confidence, probabilities, model_version, created_at
FROM predictions
ORDER BY created_at DESC, id
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	out := make([]Prediction, 0)
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return out, nil
}

// LabelCounts returns prediction counts per label, most frequent first.
func (s *Store) LabelCounts(ctx context.Context) ([]LabelCount, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT label, COUNT(*)
FROM predictions
GROUP BY label
ORDER BY COUNT(*) DESC, label
`)
	if err != nil {
		return nil, fmt.Errorf("count labels: %w", err)
	}
	defer rows.Close()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, fmt.Errorf("scan label count: %w", err)
		}
		out = append(out, lc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate label counts: %w", err)
	}
	return out, nil
}

func (s *Store) SaveFeedback(ctx context.Context, f Feedback) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO feedback (id, prediction_id, subject, text, predicted, expected, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, f.ID, f.PredictionID, f.Subject, f.Text, f.Predicted, f.Expected, f.CreatedAt.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("save feedback: %w", err)
	}
	return nil
}

// ListFeedback returns all feedback, oldest first.
func (s *Store) ListFeedback(ctx context.Context) ([]Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, prediction_id, subject, text, predicted, expected, created_at
FROM feedback
ORDER BY created_at, id
`)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	defer rows.Close()

	out := make([]Feedback, 0)
	for rows.Next() {
		var (
			f  Feedback
			ns int64
		)
		if err := rows.Scan(&f.ID, &f.PredictionID, &f.Subject, &f.Text, &f.Predicted, &f.Expected, &ns); err != nil {
			return nil, fmt.Errorf("scan feedback: %w", err)
		}
		f.CreatedAt = time.Unix(0, ns).UTC()
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feedback: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPrediction(row scanner) (Prediction, error) {
	var (
		p     Prediction
		probs string
		ns    int64
	)
	if err := row.Scan(&p.ID, &p.Subject, &p.Text, &p.Category, &p.Label, &p.Confidence, &probs, &p.ModelVersion, &ns); err != nil {
		return Prediction{}, err
	}
	if err := json.Unmarshal([]byte(probs), &p.Probabilities); err != nil {
		return Prediction{}, fmt.Errorf("decode probabilities: %w", err)
	}
	p.CreatedAt = time.Unix(0, ns).UTC()
	return p, nil
}
