package store

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/samcharles93/textcat/internal/logger"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "textcat.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPredictionRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	preds := []Prediction{
		{ID: "p1", Subject: "alice", Text: "stock market", Category: 0, Label: "business", Confidence: 0.8, Probabilities: []float64{0.8, 0.1, 0.1}, ModelVersion: "1.0.0", CreatedAt: base},
		{ID: "p2", Subject: "bob", Text: "the match", Category: 1, Label: "sports", Confidence: 0.6, Probabilities: []float64{0.2, 0.6, 0.2}, ModelVersion: "1.0.0", CreatedAt: base.Add(time.Minute)},
		{ID: "p3", Subject: "bob", Text: "new team", Category: 1, Label: "sports", Confidence: 0.5, Probabilities: []float64{0.3, 0.5, 0.2}, ModelVersion: "1.0.0", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, p := range preds {
		if err := s.SavePrediction(ctx, p); err != nil {
			t.Fatalf("SavePrediction(%s): %v", p.ID, err)
		}
	}

	got, err := s.GetPrediction(ctx, "p2")
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if got.Label != "sports" || got.Subject != "bob" || !got.CreatedAt.Equal(preds[1].CreatedAt) {
		t.Fatalf("got %+v", got)
	}
	if len(got.Probabilities) != 3 || got.Probabilities[1] != 0.6 {
		t.Fatalf("probabilities = %v", got.Probabilities)
	}

	recent, err := s.RecentPredictions(ctx, 2)
	if err != nil {
		t.Fatalf("RecentPredictions: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "p3" || recent[1].ID != "p2" {
		t.Fatalf("recent = %+v", recent)
	}

	counts, err := s.LabelCounts(ctx)
	if err != nil {
		t.Fatalf("LabelCounts: %v", err)
	}
	want := []LabelCount{{"sports", 2}, {"business", 1}}
	if len(counts) != len(want) {
		t.Fatalf("counts = %+v", counts)
	}
	for i := range want {
		if counts[i] != want[i] {
			t.Fatalf("counts[%d] = %+v, want %+v", i, counts[i], want[i])
		}
	}

	if _, err := s.GetPrediction(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if err := s.SavePrediction(ctx, preds[0]); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestFeedbackRoundTrip(t *testing.T) {
	t.Parallel()

	s := openTemp(t)
	ctx := context.Background()
	fb := Feedback{ID: "f1", PredictionID: "p1", Subject: "alice", Text: "stock market", Predicted: "sports", Expected: "business"}
	if err := s.SaveFeedback(ctx, fb); err != nil {
		t.Fatalf("SaveFeedback: %v", err)
	}
	list, err := s.ListFeedback(ctx)
	if err != nil {
		t.Fatalf("ListFeedback: %v", err)
	}
	if len(list) != 1 || list[0].Expected != "business" || list[0].CreatedAt.IsZero() {
		t.Fatalf("feedback = %+v", list)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "db.sqlite")
	for range 2 {
		s, err := Open(context.Background(), path)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
}

func TestSavePredictionPropagatesExecError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	s := New(db)
	mock.ExpectExec("INSERT INTO predictions").
		WithArgs("p1", "alice", "text", int64(2), "technology", 0.7, "[0.1,0.2,0.7]", "1.0.0", sqlmock.AnyArg()).
		WillReturnError(errors.New("disk full"))

	err = s.SavePrediction(context.Background(), Prediction{
		ID: "p1", Subject: "alice", Text: "text", Category: 2, Label: "technology",
		Confidence: 0.7, Probabilities: []float64{0.1, 0.2, 0.7}, ModelVersion: "1.0.0",
	})
	if err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetPredictionRejectsCorruptProbabilities(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "subject", "text", "category", "label", "confidence", "probabilities", "model_version", "created_at"}).
		AddRow("p1", "alice", "text", int64(0), "business", 0.9, "{not json", "1.0.0", int64(0))
	mock.ExpectQuery("FROM predictions").WithArgs("p1").WillReturnRows(rows)

	if _, err := New(db).GetPrediction(context.Background(), "p1"); err == nil {
		t.Fatalf("expected decode error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestMigrateError(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS predictions").WillReturnError(errors.New("read-only"))
	if err := New(db).Migrate(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

type memSaver struct {
	mu    sync.Mutex
	saved []Prediction
	block chan struct{}
}

func (m *memSaver) SavePrediction(ctx context.Context, p Prediction) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, p)
	return nil
}

func TestAsyncLoggerDrainsOnClose(t *testing.T) {
	t.Parallel()

	saver := &memSaver{}
	a := NewAsyncLogger(saver, logger.Discard(), 16)
	for i := range 10 {
		if !a.Log(Prediction{ID: string(rune('a' + i))}) {
			t.Fatalf("Log(%d) rejected", i)
		}
	}
	a.Close()
	a.Close()

	if len(saver.saved) != 10 {
		t.Fatalf("saved = %d, want 10", len(saver.saved))
	}
	if a.Log(Prediction{ID: "late"}) {
		t.Fatalf("Log after Close accepted")
	}
}

func TestAsyncLoggerDropsWhenFull(t *testing.T) {
	t.Parallel()

	saver := &memSaver{block: make(chan struct{})}
	a := NewAsyncLogger(saver, logger.Discard(), 1)

	// The worker takes at most one record and blocks on it, leaving room
	// for exactly one more in the queue.
	accepted := 0
	for range 5 {
		if a.Log(Prediction{ID: "x"}) {
			accepted++
		}
	}
	if accepted < 1 || accepted > 2 {
		t.Fatalf("accepted = %d, want 1 or 2", accepted)
	}
	if a.Dropped() != 5-accepted {
		t.Fatalf("dropped = %d, want %d", a.Dropped(), 5-accepted)
	}
	close(saver.block)
	a.Close()
	if len(saver.saved) != accepted {
		t.Fatalf("saved = %d, want %d", len(saver.saved), accepted)
	}
}

func TestAsyncLoggerThrottlesDropWarning(t *testing.T) {
	t.Parallel()

	var buf syncBuffer
	log := logger.Text(&buf, slog.LevelWarn)
	saver := &memSaver{block: make(chan struct{})}
	a := NewAsyncLogger(saver, log, 1)

	for range 20 {
		a.Log(Prediction{ID: "x"})
	}
	close(saver.block)
	a.Close()

	if a.Dropped() < 18 {
		t.Fatalf("dropped = %d, want at least 18", a.Dropped())
	}
	if n := strings.Count(buf.String(), "prediction log queue full"); n != 1 {
		t.Fatalf("drop warnings = %d, want 1\n%s", n, buf.String())
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
