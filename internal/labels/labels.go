// Package labels reconciles submitted label selections with the catalog of
// allowed values, and normalizes the label shapes found in stored records.
package labels

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrNotMapping reports a labels payload that is not a JSON object.
	ErrNotMapping = errors.New("labels must be a mapping of category to values")
	// ErrInvalidValue reports a label value that is neither a string nor a
	// {name, client} record.
	ErrInvalidValue = errors.New("invalid label value")
)

// Set maps a category name to its ordered values.
type Set map[string][]string

// Validate keeps, for every submitted category, the values the catalog allows.
// Categories the catalog does not know pass through unchanged. Only submitted
// categories appear in the result.
func Validate(submitted, catalog Set) Set {
	out := make(Set, len(submitted))
	for category, values := range submitted {
		allowed, known := catalog[category]
		if !known {
			out[category] = append([]string{}, values...)
			continue
		}
		members := make(map[string]struct{}, len(allowed))
		for _, value := range allowed {
			members[value] = struct{}{}
		}
		kept := make([]string, 0, len(values))
		for _, value := range values {
			if _, ok := members[value]; ok {
				kept = append(kept, value)
			}
		}
		out[category] = kept
	}
	return out
}

// Clone returns a deep copy. A nil Set clones to an empty one.
func (s Set) Clone() Set {
	out := make(Set, len(s))
	for category, values := range s {
		out[category] = append([]string{}, values...)
	}
	return out
}

// Categories returns the category names in sorted order.
func (s Set) Categories() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON accepts every shape Decode accepts.
func (s *Set) UnmarshalJSON(data []byte) error {
	decoded, err := Decode(data)
	if err != nil {
		return err
	}
	*s = decoded
	return nil
}

// Decode normalizes a raw labels payload into a Set. A missing or null
// payload decodes to an empty Set. Each category may hold an array of strings,
// an array of {name, client} records, a mix of both, a bare string or null.
func Decode(raw json.RawMessage) (Set, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return Set{}, nil
	}
	if trimmed[0] != '{' {
		return nil, ErrNotMapping
	}

	var categories map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &categories); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotMapping, err)
	}

	out := make(Set, len(categories))
	for category, rawValues := range categories {
		values, err := decodeValues(rawValues)
		if err != nil {
			return nil, fmt.Errorf("category %q: %w", category, err)
		}
		out[category] = values
	}
	return out, nil
}

func decodeValues(raw json.RawMessage) ([]string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []string{}, nil
	}

	switch trimmed[0] {
	case '"':
		value, _, err := decodeValue(trimmed)
		if err != nil {
			return nil, err
		}
		return []string{value}, nil
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		values := make([]string, 0, len(items))
		for _, item := range items {
			value, ok, err := decodeValue(item)
			if err != nil {
				return nil, err
			}
			if ok {
				values = append(values, value)
			}
		}
		return values, nil
	default:
		return nil, ErrInvalidValue
	}
}

// labelRecord is the legacy object shape stored by older case studies.
type labelRecord struct {
	Name   string `json:"name"`
	Client string `json:"client"`
}

// decodeValue extracts one label. Strings are kept byte for byte; records
// yield name, then client. ok is false for null and for records with neither.
func decodeValue(raw json.RawMessage) (value string, ok bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", false, nil
	}
	switch trimmed[0] {
	case '"':
		if err := json.Unmarshal(trimmed, &value); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return value, true, nil
	case '{':
		var record labelRecord
		if err := json.Unmarshal(trimmed, &record); err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		if record.Name != "" {
			return record.Name, true, nil
		}
		return record.Client, record.Client != "", nil
	default:
		return "", false, ErrInvalidValue
	}
}
