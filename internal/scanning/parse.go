package scanning

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
)

// ParseKind classifies why a model response produced no item records.
type ParseKind string

const (
	KindEmpty     ParseKind = "empty"
	KindMalformed ParseKind = "malformed"
)

// ParseError describes a response no item records could be extracted from.
type ParseError struct {
	Kind    ParseKind
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

// Keys models wrap item arrays in
var wrapperKeys = []string{"items", "receipt_items", "line_items", "products"}

var (
	// "milk - 2 x 3.50", "eggs: 12 @ $0.25"
	itemLine = regexp.MustCompile(`^(.+?)\s*[-–—:]\s*(\d+(?:\.\d+)?)\s*[xX×@]\s*\$?(\d+(?:\.\d+)?)\s*$`)
	// "2 x milk @ 3.50"
	countedLine = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*[xX×]\s*(.+?)\s*@\s*\$?(\d+(?:\.\d+)?)\s*$`)
)

// ParseItems extracts candidate item records from a raw model response.
// The response usually contains a JSON array, often wrapped in markdown
// fences or surrounding prose; when no JSON can be decoded a line-based
// heuristic runs instead. A response that yields no records at all returns
// a ParseError, never a panic.
func ParseItems(text string) ([]RawItem, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &ParseError{Kind: KindEmpty, Message: "empty response from model"}
	}

	if decoded, ok := extractJSON(text); ok {
		if records := itemRecords(decoded); len(records) > 0 {
			return records, nil
		}
	}

	if records := parseLines(text); len(records) > 0 {
		return records, nil
	}

	return nil, &ParseError{Kind: KindMalformed, Message: "no item records found in response"}
}

// extractJSON finds the first balanced [...] or {...} span that decodes as
// JSON. Brackets inside string values are skipped by tracking quote state,
// which a plain regex or LastIndex scan would get wrong.
func extractJSON(text string) (any, bool) {
	for i := 0; i < len(text); i++ {
		if text[i] != '[' && text[i] != '{' {
			continue
		}
		end := balancedSpan(text, i)
		if end == -1 {
			continue
		}
		var decoded any
		if err := json.Unmarshal([]byte(text[i:end]), &decoded); err == nil {
			return decoded, true
		}
	}
	return nil, false
}

// balancedSpan walks from the opening bracket at start to its matching close,
// returning the index just past it, or -1 if the text ends unbalanced.
func balancedSpan(text string, start int) int {
	open := text[start]
	var closing byte
	switch open {
	case '[':
		closing = ']'
	case '{':
		closing = '}'
	default:
		return -1
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}

// itemRecords converts a decoded JSON value into item records. Arrays keep
// their object elements; objects are unwrapped ({"items": [...]}), expanded
// ({"milk": {...}, "eggs": {...}}), or kept as a single record.
func itemRecords(decoded any) []RawItem {
	switch val := decoded.(type) {
	case []any:
		var records []RawItem
		for _, el := range val {
			if obj, ok := el.(map[string]any); ok {
				records = append(records, RawItem(obj))
			}
		}
		return records
	case map[string]any:
		if inner, ok := unwrapItems(val); ok {
			return itemRecords(inner)
		}
		if records, ok := namedRecords(val); ok {
			return records
		}
		return []RawItem{RawItem(val)}
	}
	return nil
}

// unwrapItems looks for a recognized wrapper key holding the actual records.
func unwrapItems(obj map[string]any) (any, bool) {
	for key, val := range obj {
		lower := strings.ToLower(strings.TrimSpace(key))
		for _, wrapper := range wrapperKeys {
			if lower != wrapper {
				continue
			}
			switch val.(type) {
			case []any, map[string]any:
				return val, true
			}
		}
	}
	return nil, false
}

// namedRecords handles the name-keyed shape {"milk": {"quantity": 1, ...}}:
// every value must itself be an object. The key becomes the record's name
// unless the fields already carry one.
func namedRecords(obj map[string]any) ([]RawItem, bool) {
	if len(obj) == 0 {
		return nil, false
	}
	names := make([]string, 0, len(obj))
	for name, val := range obj {
		if _, ok := val.(map[string]any); !ok {
			return nil, false
		}
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]RawItem, 0, len(names))
	for _, name := range names {
		fields := obj[name].(map[string]any)
		record := make(RawItem, len(fields)+1)
		for k, v := range fields {
			record[k] = v
		}
		if _, ok := record["name"]; !ok {
			record["name"] = name
		}
		records = append(records, record)
	}
	return records, true
}

// parseLines is the low-confidence fallback for responses with no decodable
// JSON: receipt-ish lines become string-valued records for the validator to
// coerce.
func parseLines(text string) []RawItem {
	var records []RawItem
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := itemLine.FindStringSubmatch(line); m != nil {
			records = append(records, RawItem{"name": m[1], "quantity": m[2], "price": m[3]})
			continue
		}
		if m := countedLine.FindStringSubmatch(line); m != nil {
			records = append(records, RawItem{"name": m[2], "quantity": m[1], "price": m[3]})
		}
	}
	return records
}
