package session

import (
	"fmt"
	"testing"
	"time"
)

func TestNewMemoryStoreValidation(t *testing.T) {
	if _, err := NewMemoryStore(0); err == nil {
		t.Error("Expected error for zero retention")
	}
	if _, err := NewMemoryStore(-5); err == nil {
		t.Error("Expected error for negative retention")
	}
	if _, err := NewMemoryStore(1); err != nil {
		t.Errorf("Unexpected error for retention of 1: %v", err)
	}
}

func TestMemoryStoreSaveAndGet(t *testing.T) {
	store, err := NewMemoryStore(10)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	rec := &Record{
		ID:        "session-1",
		StartTime: time.Now(),
		Codec:     "pcm",
	}
	if err := store.Save(rec); err != nil {
		t.Fatalf("Failed to save record: %v", err)
	}

	got, ok := store.Get("session-1")
	if !ok {
		t.Fatal("Expected to find saved record")
	}
	if got.ID != "session-1" || got.Codec != "pcm" {
		t.Errorf("Got unexpected record: %+v", got)
	}

	// Mutating the returned copy must not affect the stored record.
	got.Codec = "opus"
	again, _ := store.Get("session-1")
	if again.Codec != "pcm" {
		t.Error("Store returned a shared record instead of a copy")
	}

	if _, ok := store.Get("missing"); ok {
		t.Error("Expected miss for unknown id")
	}
}

func TestMemoryStoreSaveRejectsEmptyID(t *testing.T) {
	store, _ := NewMemoryStore(10)

	if err := store.Save(nil); err == nil {
		t.Error("Expected error for nil record")
	}
	if err := store.Save(&Record{}); err == nil {
		t.Error("Expected error for record without id")
	}
}

func TestMemoryStoreUpsert(t *testing.T) {
	store, _ := NewMemoryStore(10)

	_ = store.Save(&Record{ID: "session-1", Codec: "pcm"})
	_ = store.Save(&Record{ID: "session-1", Codec: "pcm", BytesTransferred: 512})

	if store.Len() != 1 {
		t.Errorf("Expected 1 record after upsert, got %d", store.Len())
	}
	got, _ := store.Get("session-1")
	if got.BytesTransferred != 512 {
		t.Errorf("Expected upserted record, got bytes=%d", got.BytesTransferred)
	}
}

func TestMemoryStoreRetention(t *testing.T) {
	store, _ := NewMemoryStore(3)

	for i := 1; i <= 5; i++ {
		_ = store.Save(&Record{ID: fmt.Sprintf("session-%d", i)})
	}

	if store.Len() != 3 {
		t.Fatalf("Expected 3 retained records, got %d", store.Len())
	}
	for _, id := range []string{"session-1", "session-2"} {
		if _, ok := store.Get(id); ok {
			t.Errorf("Expected %s to be evicted", id)
		}
	}
	for _, id := range []string{"session-3", "session-4", "session-5"} {
		if _, ok := store.Get(id); !ok {
			t.Errorf("Expected %s to be retained", id)
		}
	}
}

func TestMemoryStoreRecent(t *testing.T) {
	store, _ := NewMemoryStore(10)

	for i := 1; i <= 4; i++ {
		_ = store.Save(&Record{ID: fmt.Sprintf("session-%d", i)})
	}

	recent := store.Recent(2)
	if len(recent) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(recent))
	}
	if recent[0].ID != "session-4" || recent[1].ID != "session-3" {
		t.Errorf("Expected newest first, got %s, %s", recent[0].ID, recent[1].ID)
	}

	all := store.Recent(100)
	if len(all) != 4 {
		t.Errorf("Expected all 4 records, got %d", len(all))
	}
}
