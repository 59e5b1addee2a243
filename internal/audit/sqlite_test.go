package audit

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore_Record(t *testing.T) {
	s := newTestStore(t)

	in := Interaction{
		ID:           uuid.New().String(),
		RequestID:    uuid.New().String(),
		Subject:      "patient-42",
		Model:        "coach-chat-1",
		Temperature:  0.2,
		MessageCount: 3,
		PromptTokens: 57,
		Estimated:    true,
		Status:       200,
		Duration:     120 * time.Millisecond,
	}
	if err := s.Record(context.Background(), in); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM interactions WHERE subject = ?", "patient-42").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 1 {
		t.Errorf("row count = %d, want 1", count)
	}

	var status, promptTokens int
	var createdAt time.Time
	err := s.db.QueryRow(
		"SELECT status, prompt_tokens, created_at FROM interactions WHERE id = ?", in.ID,
	).Scan(&status, &promptTokens, &createdAt)
	if err != nil {
		t.Fatalf("query row: %v", err)
	}
	if status != 200 || promptTokens != 57 {
		t.Errorf("stored status=%d tokens=%d, want 200/57", status, promptTokens)
	}
	if createdAt.IsZero() {
		t.Error("created_at should be backfilled when zero")
	}
}

func TestSQLiteStore_RecordMany(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 10; i++ {
		in := Interaction{
			ID:        uuid.New().String(),
			RequestID: uuid.New().String(),
			Subject:   "patient-7",
			Status:    200,
			CreatedAt: time.Now().UTC(),
		}
		if err := s.Record(context.Background(), in); err != nil {
			t.Fatalf("Record() #%d error = %v", i, err)
		}
	}

	var count int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM interactions").Scan(&count); err != nil {
		t.Fatalf("query: %v", err)
	}
	if count != 10 {
		t.Errorf("row count = %d, want 10", count)
	}
}

func TestSQLiteStore_DuplicateIDRejected(t *testing.T) {
	s := newTestStore(t)

	in := Interaction{ID: "same-id", RequestID: "r1", Subject: "p", Status: 200}
	if err := s.Record(context.Background(), in); err != nil {
		t.Fatalf("first Record() error = %v", err)
	}
	if err := s.Record(context.Background(), in); err == nil {
		t.Error("second Record() with duplicate id should fail")
	}
}

func TestSQLiteStore_Recent(t *testing.T) {
	s := newTestStore(t)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		in := Interaction{
			ID:        uuid.New().String(),
			RequestID: uuid.New().String(),
			Subject:   "patient-1",
			Status:    200,
			Duration:  time.Duration(i) * time.Millisecond,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.Record(context.Background(), in); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	rows, err := s.Recent(context.Background(), 3)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("len = %d, want 3", len(rows))
	}
	if !rows[0].CreatedAt.After(rows[2].CreatedAt) {
		t.Errorf("rows not newest-first: %v then %v", rows[0].CreatedAt, rows[2].CreatedAt)
	}
	if rows[0].Duration != 4*time.Millisecond {
		t.Errorf("duration round-trip = %v, want 4ms", rows[0].Duration)
	}
}

func TestNopStore(t *testing.T) {
	var s Store = NopStore{}
	if err := s.Record(context.Background(), Interaction{}); err != nil {
		t.Errorf("NopStore.Record() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("NopStore.Close() error = %v", err)
	}
}
