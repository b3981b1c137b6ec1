package fridge

import "fridges/internal/scanning"

// Entry is the stored aggregate for one item name: the total quantity owned
// and the running weighted-average price paid per unit.
type Entry struct {
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Document is one user's fridge, keyed by normalized item name.
type Document struct {
	UID   string           `json:"uid"`
	Items map[string]Entry `json:"items"`
}

// NewDocument returns an empty fridge for a user.
func NewDocument(uid string) *Document {
	return &Document{UID: uid, Items: make(map[string]Entry)}
}

// TotalValue is the worth of the fridge at the recorded average prices.
func (d *Document) TotalValue() float64 {
	var total float64
	for _, entry := range d.Items {
		total += entry.Quantity * entry.UnitPrice
	}
	return round2(total)
}

// Summary reports what one reconciliation changed.
type Summary struct {
	Added   []string      `json:"added"`
	Updated []UpdatedItem `json:"updated"`
}

// UpdatedItem records an existing entry before and after a merge.
type UpdatedItem struct {
	Name         string  `json:"name"`
	OldQuantity  float64 `json:"old_quantity"`
	NewQuantity  float64 `json:"new_quantity"`
	OldUnitPrice float64 `json:"old_unit_price"`
	NewUnitPrice float64 `json:"new_unit_price"`
}

// Rejection pairs a raw record with the reason it was rejected.
type Rejection struct {
	Raw    scanning.RawItem `json:"raw"`
	Reason string           `json:"reason"`
}

// ScanResult is the outcome of one scan, returned to the caller for
// reporting. It is never persisted.
type ScanResult struct {
	UID      string      `json:"uid"`
	Items    []Item      `json:"items"`
	Rejected []Rejection `json:"rejected"`
	Summary  *Summary    `json:"summary,omitempty"`
	Document *Document   `json:"document,omitempty"`
	DryRun   bool        `json:"dry_run"`
}
