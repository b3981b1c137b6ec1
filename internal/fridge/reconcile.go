package fridge

import (
	"fmt"
	"math"
)

// round2 keeps money at two decimal places.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Reconcile merges validated items into an existing document and returns the
// updated document plus a change summary. It performs no I/O and never
// mutates its inputs; a nil document is treated as an empty fridge.
//
// Prices aggregate as the running quantity-weighted average, so the stored
// unit price stays "average paid per unit across all purchases" rather than
// the latest purchase's price. Duplicate names within one batch merge against
// the working document, which makes merging two batches sequentially equal to
// merging their concatenation.
func Reconcile(existing *Document, items []Item) (*Document, *Summary, error) {
	if existing == nil {
		existing = NewDocument("")
	}

	// A stored entry with non-positive quantity would poison the weighted
	// average; refuse to merge into corrupt state.
	for name, entry := range existing.Items {
		if entry.Quantity <= 0 {
			return nil, nil, fmt.Errorf("%w: item %q has quantity %v", ErrCorruptDocument, name, entry.Quantity)
		}
	}

	updated := &Document{
		UID:   existing.UID,
		Items: make(map[string]Entry, len(existing.Items)+len(items)),
	}
	for name, entry := range existing.Items {
		updated.Items[name] = entry
	}

	seen := make(map[string]bool, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		current, ok := updated.Items[item.Name]
		if ok {
			combinedQuantity := current.Quantity + item.Quantity
			combinedPrice := round2((current.Quantity*current.UnitPrice + item.Quantity*item.UnitPrice) / combinedQuantity)
			updated.Items[item.Name] = Entry{Quantity: combinedQuantity, UnitPrice: combinedPrice}
		} else {
			updated.Items[item.Name] = Entry{Quantity: item.Quantity, UnitPrice: round2(item.UnitPrice)}
		}
		if !seen[item.Name] {
			seen[item.Name] = true
			order = append(order, item.Name)
		}
	}

	summary := &Summary{Added: []string{}, Updated: []UpdatedItem{}}
	for _, name := range order {
		after := updated.Items[name]
		before, existed := existing.Items[name]
		if existed {
			summary.Updated = append(summary.Updated, UpdatedItem{
				Name:         name,
				OldQuantity:  before.Quantity,
				NewQuantity:  after.Quantity,
				OldUnitPrice: before.UnitPrice,
				NewUnitPrice: after.UnitPrice,
			})
		} else {
			summary.Added = append(summary.Added, name)
		}
	}

	return updated, summary, nil
}
