package fridge

import (
	"fmt"
	"strconv"
	"strings"

	"fridges/internal/scanning"
)

// Item is one validated inventory delta extracted from a receipt.
type Item struct {
	Name       string  `json:"name"`
	Quantity   float64 `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	TotalPrice float64 `json:"total_price"`
}

// ValidationKind classifies why a raw record was rejected.
type ValidationKind string

const (
	KindNonNumeric   ValidationKind = "non_numeric"
	KindMissingField ValidationKind = "missing_field"
	KindOutOfRange   ValidationKind = "out_of_range"
)

// ValidationError describes a raw record the validator rejected.
type ValidationError struct {
	Kind  ValidationKind
	Field string
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindNonNumeric:
		return fmt.Sprintf("%s is not numeric", e.Field)
	case KindMissingField:
		return fmt.Sprintf("%s is missing", e.Field)
	case KindOutOfRange:
		return fmt.Sprintf("%s is out of range", e.Field)
	}
	return fmt.Sprintf("invalid %s", e.Field)
}

// Models name the same concept many ways; first present wins.
var (
	nameKeys     = []string{"name", "item", "product"}
	quantityKeys = []string{"quantity", "qty", "count"}
	priceKeys    = []string{"price", "unit_price", "cost"}
	totalKeys    = []string{"total", "total_price"}
)

// currencyCleaner strips the symbols and spacing models wrap prices in.
var currencyCleaner = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", " ", "", "\t", "")

// ValidateItem normalizes one raw record into an Item. Rejected records
// return a ValidationError naming the failing field; accepted ones carry the
// normalized name the reconciler joins on. Pure function, no logging.
func ValidateItem(raw scanning.RawItem) (Item, error) {
	fields := foldKeys(raw)

	nameVal, ok := firstPresent(fields, nameKeys)
	if !ok {
		return Item{}, &ValidationError{Kind: KindMissingField, Field: "name"}
	}
	nameStr, ok := nameVal.(string)
	if !ok {
		return Item{}, &ValidationError{Kind: KindMissingField, Field: "name"}
	}
	name := NormalizeName(nameStr)
	if name == "" {
		return Item{}, &ValidationError{Kind: KindMissingField, Field: "name"}
	}

	quantityVal, ok := firstPresent(fields, quantityKeys)
	if !ok {
		return Item{}, &ValidationError{Kind: KindMissingField, Field: "quantity"}
	}
	quantity, err := coerceNumber(quantityVal)
	if err != nil {
		return Item{}, &ValidationError{Kind: KindNonNumeric, Field: "quantity"}
	}
	if quantity <= 0 {
		return Item{}, &ValidationError{Kind: KindOutOfRange, Field: "quantity"}
	}

	var unitPrice float64
	if priceVal, ok := firstPresent(fields, priceKeys); ok {
		unitPrice, err = coerceNumber(priceVal)
		if err != nil {
			return Item{}, &ValidationError{Kind: KindNonNumeric, Field: "price"}
		}
	} else if totalVal, ok := firstPresent(fields, totalKeys); ok {
		total, err := coerceNumber(totalVal)
		if err != nil {
			return Item{}, &ValidationError{Kind: KindNonNumeric, Field: "total"}
		}
		unitPrice = total / quantity
	} else {
		return Item{}, &ValidationError{Kind: KindMissingField, Field: "price"}
	}
	if unitPrice < 0 {
		return Item{}, &ValidationError{Kind: KindOutOfRange, Field: "price"}
	}

	return Item{
		Name:       name,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
		TotalPrice: quantity * unitPrice,
	}, nil
}

// NormalizeName lowercases, trims, and collapses internal whitespace. The
// result is the join key for reconciliation, so "Whole  Milk" and "whole
// milk" land on the same entry.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// foldKeys rebuilds the record with lowercased, trimmed keys so alias lookup
// is case-insensitive.
func foldKeys(raw scanning.RawItem) map[string]any {
	fields := make(map[string]any, len(raw))
	for key, val := range raw {
		folded := strings.ToLower(strings.TrimSpace(key))
		if _, exists := fields[folded]; !exists {
			fields[folded] = val
		}
	}
	return fields
}

func firstPresent(fields map[string]any, keys []string) (any, bool) {
	for _, key := range keys {
		if val, ok := fields[key]; ok {
			return val, true
		}
	}
	return nil, false
}

// coerceNumber accepts JSON numbers and numeric strings. Strings are cleaned
// of currency symbols and whitespace before parsing; anything else fails.
func coerceNumber(val any) (float64, error) {
	switch v := val.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case string:
		cleaned := currencyCleaner.Replace(strings.TrimSpace(v))
		if cleaned == "" {
			return 0, fmt.Errorf("empty numeric string")
		}
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing %q: %w", v, err)
		}
		return parsed, nil
	}
	return 0, fmt.Errorf("unsupported type %T", val)
}
