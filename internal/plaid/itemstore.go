package plaid

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	bolt "github.com/boltdb/bolt"
)

const itemsBucket = "items"

// ErrItemNotFound is returned when a requested item does not exist.
var ErrItemNotFound = errors.New("item not found")

// Item is one linked bank connection: the access token that authorizes
// transaction pulls and the cursor marking how far syncing has progressed.
type Item struct {
	ItemID      string    `json:"item_id"`
	UserID      string    `json:"user_id"`
	AccessToken string    `json:"access_token"`
	Cursor      string    `json:"cursor,omitempty"`
	LinkedAt    time.Time `json:"linked_at"`
	LastSyncAt  time.Time `json:"last_sync_at,omitempty"`
}

// ItemStore persists linked items and sync cursors in a BoltDB file. A single
// file keeps the deployment story simple - no external database process is
// needed for this small, low-churn dataset.
type ItemStore struct {
	db *bolt.DB
}

// OpenItemStore opens (or creates) the BoltDB file at path and ensures the
// items bucket exists.
func OpenItemStore(path string) (*ItemStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("plaid: opening item store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(itemsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("plaid: creating items bucket: %w", err)
	}

	return &ItemStore{db: db}, nil
}

// Close releases the database file lock.
func (s *ItemStore) Close() error {
	return s.db.Close()
}

// SaveItem writes an item keyed by its ID. Saving the same item twice is
// harmless; the last write wins.
func (s *ItemStore) SaveItem(item *Item) error {
	if item.ItemID == "" {
		return fmt.Errorf("plaid: item ID is required")
	}
	if item.LinkedAt.IsZero() {
		item.LinkedAt = time.Now().UTC()
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("plaid: encoding item: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).Put([]byte(item.ItemID), data)
	})
}

// GetItem retrieves an item by ID.
func (s *ItemStore) GetItem(itemID string) (*Item, error) {
	var item Item
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(itemsBucket)).Get([]byte(itemID))
		if data == nil {
			return ErrItemNotFound
		}
		return json.Unmarshal(data, &item)
	})
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListItems returns every linked item across all users.
func (s *ItemStore) ListItems() ([]*Item, error) {
	var items []*Item
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).ForEach(func(_, data []byte) error {
			var item Item
			if err := json.Unmarshal(data, &item); err != nil {
				return err
			}
			items = append(items, &item)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("plaid: listing items: %w", err)
	}
	return items, nil
}

// ListUserItems returns every item linked by the given user.
func (s *ItemStore) ListUserItems(userID string) ([]*Item, error) {
	var items []*Item
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(itemsBucket)).ForEach(func(_, data []byte) error {
			var item Item
			if err := json.Unmarshal(data, &item); err != nil {
				return err
			}
			if item.UserID == userID {
				items = append(items, &item)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("plaid: listing items for %q: %w", userID, err)
	}
	return items, nil
}

// AdvanceCursor records a completed sync: the new cursor plus the sync time.
func (s *ItemStore) AdvanceCursor(itemID, cursor string) error {
	item, err := s.GetItem(itemID)
	if err != nil {
		return err
	}
	item.Cursor = cursor
	item.LastSyncAt = time.Now().UTC()
	return s.SaveItem(item)
}
