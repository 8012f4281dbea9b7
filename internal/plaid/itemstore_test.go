package plaid

import (
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *ItemStore {
	t.Helper()
	store, err := OpenItemStore(filepath.Join(t.TempDir(), "items.db"))
	if err != nil {
		t.Fatalf("OpenItemStore error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestItemStore_SaveAndGet(t *testing.T) {
	store := openTestStore(t)

	item := &Item{
		ItemID:      "item-1",
		UserID:      "user-1",
		AccessToken: "access-1",
	}
	if err := store.SaveItem(item); err != nil {
		t.Fatalf("SaveItem error: %v", err)
	}
	if item.LinkedAt.IsZero() {
		t.Error("SaveItem did not stamp LinkedAt")
	}

	got, err := store.GetItem("item-1")
	if err != nil {
		t.Fatalf("GetItem error: %v", err)
	}
	if got.AccessToken != "access-1" || got.UserID != "user-1" {
		t.Errorf("got %+v, want saved item back", got)
	}
}

func TestItemStore_SaveRequiresID(t *testing.T) {
	store := openTestStore(t)
	if err := store.SaveItem(&Item{UserID: "user-1"}); err == nil {
		t.Fatal("expected error for item without ID")
	}
}

func TestItemStore_GetMissing(t *testing.T) {
	store := openTestStore(t)
	_, err := store.GetItem("nope")
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("GetItem error = %v, want ErrItemNotFound", err)
	}
}

func TestItemStore_ListUserItems(t *testing.T) {
	store := openTestStore(t)

	for _, item := range []*Item{
		{ItemID: "a", UserID: "user-1", AccessToken: "t1"},
		{ItemID: "b", UserID: "user-2", AccessToken: "t2"},
		{ItemID: "c", UserID: "user-1", AccessToken: "t3"},
	} {
		if err := store.SaveItem(item); err != nil {
			t.Fatalf("SaveItem(%s) error: %v", item.ItemID, err)
		}
	}

	items, err := store.ListUserItems("user-1")
	if err != nil {
		t.Fatalf("ListUserItems error: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("got %d items for user-1, want 2", len(items))
	}

	all, err := store.ListItems()
	if err != nil {
		t.Fatalf("ListItems error: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("got %d items total, want 3", len(all))
	}
}

func TestItemStore_AdvanceCursor(t *testing.T) {
	store := openTestStore(t)

	if err := store.SaveItem(&Item{ItemID: "item-1", UserID: "u", AccessToken: "t"}); err != nil {
		t.Fatalf("SaveItem error: %v", err)
	}
	if err := store.AdvanceCursor("item-1", "cursor-9"); err != nil {
		t.Fatalf("AdvanceCursor error: %v", err)
	}

	got, err := store.GetItem("item-1")
	if err != nil {
		t.Fatalf("GetItem error: %v", err)
	}
	if got.Cursor != "cursor-9" {
		t.Errorf("cursor = %q, want cursor-9", got.Cursor)
	}
	if got.LastSyncAt.IsZero() {
		t.Error("AdvanceCursor did not stamp LastSyncAt")
	}

	if err := store.AdvanceCursor("missing", "c"); !errors.Is(err, ErrItemNotFound) {
		t.Errorf("AdvanceCursor(missing) error = %v, want ErrItemNotFound", err)
	}
}
