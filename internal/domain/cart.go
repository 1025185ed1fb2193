// Package domain defines the data model for the offline-first POS engine:
// the durable cart session, its recovery history, the offline mutation
// queue, and the response cache. Cart documents are JSON-serialized into
// namespaced key-value records; only the KV records and cache entries
// themselves are mapped with GORM (see record.go and cache.go).
package domain

import "time"

// ProductSnapshot captures the product fields that must survive offline,
// frozen at the moment the item was added to the cart. Prices shown on the
// device keep meaning even if the catalog changes server-side.
//
// Fields:
//   - ID: backend product identifier.
//   - SKU: stock-keeping unit code, as scanned.
//   - Name: display name at add time.
//   - Price: unit price at add time.
//   - Currency: ISO 4217 code (e.g. "USD"); drives display formatting.
type ProductSnapshot struct {
	ID       string  `json:"id"`
	SKU      string  `json:"sku,omitempty"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
}

// CartItem is a single line in the cart. Items are unique by product ID
// within a CartState; adding the same product again sums quantities.
//
// Fields:
//   - ID: product identifier, unique within the cart.
//   - Product: snapshot of the product at add time.
//   - Quantity: always > 0 (a zero/negative quantity removes the line).
//   - AddedAt: when the line was first created.
//   - Notes: optional free-form note (e.g. "gift wrap").
type CartItem struct {
	ID       string          `json:"id"`
	Product  ProductSnapshot `json:"product"`
	Quantity int             `json:"quantity"`
	AddedAt  time.Time       `json:"added_at"`
	Notes    string          `json:"notes,omitempty"`
}

// CartState is the authoritative cart session document.
//
// Invariants:
//   - TotalItems == sum of item quantities.
//   - TotalValue is a pure function of the items (quantity × unit price).
//   - A state whose LastUpdated is older than the retention window is
//     treated as non-existent on the next load and purged.
type CartState struct {
	Items       []CartItem `json:"items"`
	TotalItems  int        `json:"total_items"`
	TotalValue  float64    `json:"total_value"`
	LastUpdated time.Time  `json:"last_updated"`
	SessionID   string     `json:"session_id"`
	EmployeeID  string     `json:"employee_id,omitempty"`
	Location    string     `json:"location,omitempty"`
}

// Recalculate recomputes TotalItems and TotalValue from the items slice.
// Call after any structural mutation; the totals are never trusted as input.
func (s *CartState) Recalculate() {
	items, value := 0, 0.0
	for _, it := range s.Items {
		items += it.Quantity
		value += float64(it.Quantity) * it.Product.Price
	}
	s.TotalItems = items
	s.TotalValue = value
}

// Find returns a pointer to the item with the given product id, or nil.
func (s *CartState) Find(id string) *CartItem {
	for i := range s.Items {
		if s.Items[i].ID == id {
			return &s.Items[i]
		}
	}
	return nil
}

// CartMetadata is bookkeeping attached 1:1 to the active session.
// CreatedAt is immutable for the session's lifetime; LastAccessedAt is
// refreshed on every load.
type CartMetadata struct {
	Version        string    `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
	DeviceInfo     string    `json:"device_info,omitempty"`
}

// HistoryEntry is an immutable snapshot of the cart taken at save time.
// Entries live in a FIFO ring bounded by the store's history limit and are
// used only for recovery, never for authoritative reads.
type HistoryEntry struct {
	SavedAt time.Time `json:"saved_at"`
	State   CartState `json:"state"`
}

// SnapshotDocument is the export/import interchange format.
// Import rejects any document whose Current field is absent; see
// store.ImportSnapshot for the validation rules.
type SnapshotDocument struct {
	Current    *CartState     `json:"current"`
	Metadata   *CartMetadata  `json:"metadata"`
	History    []HistoryEntry `json:"history"`
	ExportedAt time.Time      `json:"exported_at"`
	Version    string         `json:"version"`
}
