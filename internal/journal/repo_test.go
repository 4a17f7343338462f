package journal

import (
	"context"
	"testing"
	"time"
)

func TestRecordAndRecent(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	entries := []Entry{
		{IntentID: "i-1", IntentType: "new", Kind: "queue_backlog", Subject: "orders", Severity: "critical", Summary: "backlog", Channel: "webhook", Status: StatusSent, CreatedAt: now.Add(-2 * time.Minute)},
		{IntentID: "i-2", IntentType: "recovery", Kind: "queue_backlog", Subject: "orders", Severity: "critical", Summary: "backlog", Channel: "webhook", Status: StatusFailed, Error: "status 500", CreatedAt: now},
	}
	for _, e := range entries {
		if err := repo.RecordNotification(ctx, e); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	got, err := repo.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("entries len = %d, want 2", len(got))
	}
	if got[0].IntentID != "i-2" || got[0].Error != "status 500" {
		t.Fatalf("unexpected newest entry: %+v", got[0])
	}
	if got[1].Error != "" || !got[1].CreatedAt.Equal(now.Add(-2*time.Minute)) {
		t.Fatalf("unexpected oldest entry: %+v", got[1])
	}
}

func TestDeleteOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 12, 0, 0, 0, time.UTC)

	for i, age := range []time.Duration{48 * time.Hour, 25 * time.Hour, time.Hour} {
		err := repo.RecordNotification(ctx, Entry{IntentID: string(rune('a' + i)), IntentType: "new", Kind: "node_down", Subject: "rabbit@a", Severity: "critical", Summary: "down", Channel: "webhook", Status: StatusSent, CreatedAt: now.Add(-age)})
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	n, err := repo.DeleteOlderThan(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("deleted = %d, want 2", n)
	}
	left, _ := repo.Recent(ctx, 10)
	if len(left) != 1 || left[0].IntentID != "c" {
		t.Fatalf("unexpected remaining entries: %+v", left)
	}
}

func TestOpenInMemory(t *testing.T) {
	sqldb, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := Migrate(sqldb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	repo := NewRepository(sqldb)
	if err := repo.RecordNotification(context.Background(), Entry{IntentID: "x", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("record: %v", err)
	}
	got, err := repo.Recent(context.Background(), 1)
	if err != nil || len(got) != 1 {
		t.Fatalf("recent = %v, %v", got, err)
	}
}

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	sqldb, err := Open(t.TempDir() + "/journal.db")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = sqldb.Close() })
	if err := Migrate(sqldb); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return NewRepository(sqldb)
}
