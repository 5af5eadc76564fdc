package domain

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// Ref is an optional reference to another record by id.
// The zero value means "not set" and is stored as SQL NULL.
type Ref string

// IsSet reports whether the reference points at a record.
func (r Ref) IsSet() bool {
	return r != ""
}

// String returns the referenced id, or "" when unset.
func (r Ref) String() string {
	return string(r)
}

// Scan implements sql.Scanner. NULL scans as an unset Ref.
func (r *Ref) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*r = ""
	case string:
		*r = Ref(v)
	case []byte:
		*r = Ref(string(v))
	default:
		return fmt.Errorf("scan ref: unsupported type %T", src)
	}
	return nil
}

// Value implements driver.Valuer. An unset Ref is written as NULL.
func (r Ref) Value() (driver.Value, error) {
	if r == "" {
		return nil, nil
	}
	return string(r), nil
}

// MarshalJSON writes an unset Ref as null.
func (r Ref) MarshalJSON() ([]byte, error) {
	if r == "" {
		return []byte("null"), nil
	}
	return json.Marshal(string(r))
}

// UnmarshalJSON accepts every shape a joined row arrives in:
//
//	null | "id" | {"id":"..."} | [{"id":"..."}] | []
//
// More than one element in an array is rejected; the relation is to-one.
func (r *Ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("ref: %w", err)
		}
		*r = Ref(s)
		return nil

	case '{':
		var row struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(data, &row); err != nil {
			return fmt.Errorf("ref: %w", err)
		}
		*r = Ref(row.ID)
		return nil

	case '[':
		var rows []json.RawMessage
		if err := json.Unmarshal(data, &rows); err != nil {
			return fmt.Errorf("ref: %w", err)
		}
		switch len(rows) {
		case 0:
			*r = ""
			return nil
		case 1:
			return r.UnmarshalJSON(rows[0])
		default:
			return fmt.Errorf("ref: expected at most one related row, got %d", len(rows))
		}
	}

	return fmt.Errorf("ref: unsupported JSON value %s", string(data))
}
