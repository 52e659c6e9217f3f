package history

import (
	"context"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSaveAssignsIDAndTimestamp(t *testing.T) {
	store := testStore(t)

	rec := &Record{UserID: "u1", Title: "【主菜】唐揚げ", Source: "llm", Category: "japanese"}
	if err := store.Save(context.Background(), rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if rec.ID == "" || rec.CreatedAt.IsZero() {
		t.Fatalf("record not filled in: %+v", rec)
	}
}

func TestListNewestFirstPerUser(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, title := range []string{"first", "second", "third"} {
		store.nowFunc = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		if err := store.Save(ctx, &Record{UserID: "u1", Title: title, Source: "rag"}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}
	if err := store.Save(ctx, &Record{UserID: "u2", Title: "other", Source: "llm"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	records, err := store.List(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want 3 (other user excluded)", len(records))
	}
	if records[0].Title != "third" || records[2].Title != "first" {
		t.Fatalf("order = %q, %q, %q", records[0].Title, records[1].Title, records[2].Title)
	}

	limited, err := store.List(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(limited) != 2 {
		t.Fatalf("limited records = %d, want 2", len(limited))
	}
}
