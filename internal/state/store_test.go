package state

import (
	"context"
	"testing"
	"time"

	"github.com/aonescu/shopkeeper/internal/types"
)

func entry(action types.Action, id string) types.AuditEntry {
	return types.AuditEntry{
		Timestamp: time.Now(),
		Action:    action,
		Details:   map[string]string{"id": id},
	}
}

func TestMemoryStore_Append(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	if err := store.Append(ctx, entry(types.ActionCreateStart, "store-a")); err != nil {
		t.Fatalf("Append() failed: %v", err)
	}

	all := store.All()
	if len(all) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(all))
	}
	if all[0].Details["id"] != "store-a" {
		t.Errorf("Expected id store-a, got %s", all[0].Details["id"])
	}
}

func TestMemoryStore_RecentNewestFirst(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	store.Append(ctx, entry(types.ActionCreateStart, "store-a"))
	store.Append(ctx, entry(types.ActionCreateSuccess, "store-a"))
	store.Append(ctx, entry(types.ActionCreateStart, "store-b"))

	recent, err := store.Recent(ctx, "", 2)
	if err != nil {
		t.Fatalf("Recent() failed: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(recent))
	}
	if recent[0].Details["id"] != "store-b" || recent[1].Action != types.ActionCreateSuccess {
		t.Errorf("Unexpected order: %+v", recent)
	}
}

func TestMemoryStore_RecentFiltersByAction(t *testing.T) {
	store := NewMemoryStore(10)
	ctx := context.Background()

	store.Append(ctx, entry(types.ActionCreateStart, "store-a"))
	store.Append(ctx, entry(types.ActionDeleteStart, "store-a"))
	store.Append(ctx, entry(types.ActionCreateStart, "store-b"))

	starts, _ := store.Recent(ctx, types.ActionCreateStart, 10)
	if len(starts) != 2 {
		t.Fatalf("Expected 2 create starts, got %d", len(starts))
	}
	for _, e := range starts {
		if e.Action != types.ActionCreateStart {
			t.Errorf("Unexpected action %s", e.Action)
		}
	}
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	store.Append(ctx, entry(types.ActionCreateStart, "store-a"))
	store.Append(ctx, entry(types.ActionCreateStart, "store-b"))
	store.Append(ctx, entry(types.ActionCreateStart, "store-c"))

	all := store.All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 retained entries, got %d", len(all))
	}
	if all[0].Details["id"] != "store-b" || all[1].Details["id"] != "store-c" {
		t.Errorf("Unexpected retained entries: %+v", all)
	}
	if store.Count(types.ActionCreateStart) != 3 {
		t.Errorf("Expected count 3, got %d", store.Count(types.ActionCreateStart))
	}
}

func TestMemoryStore_DefaultCapacity(t *testing.T) {
	store := NewMemoryStore(0)
	if store.capacity != DefaultCapacity {
		t.Errorf("Expected capacity %d, got %d", DefaultCapacity, store.capacity)
	}
}
