package fridge

import "errors"

var (
	// ErrNotFound is returned by stores when no document exists for a uid.
	ErrNotFound = errors.New("fridge not found")

	// ErrNoValidItems means a scan parsed records but none survived
	// validation; the ScanResult returned alongside it carries the reasons.
	ErrNoValidItems = errors.New("no valid items found in receipt")

	// ErrEmptyFridge means recipes were requested for a fridge with no items.
	ErrEmptyFridge = errors.New("fridge is empty")

	// ErrCorruptDocument means stored state violates the item invariants.
	ErrCorruptDocument = errors.New("corrupt fridge document")
)
