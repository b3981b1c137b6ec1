package scanning

import "context"

// RawItem is one candidate item record extracted from a model response.
// Keys and value types are whatever the model produced; validation happens
// downstream.
type RawItem map[string]any

// Scanner defines the interface for receipt scanning operations
type Scanner interface {
	// ScanReceipt analyzes a receipt image/PDF and returns the raw model text
	ScanReceipt(ctx context.Context, imageData []byte, contentType string) (string, error)
	// Close closes the scanner and releases resources
	Close() error
}
