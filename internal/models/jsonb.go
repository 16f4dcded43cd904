package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

//
// JSON column helpers
//

// JSONB is a helper for JSON object columns (jsonb in Postgres, TEXT in SQLite).
// Backed by map[string]any and works with sqlx / database/sql.
type JSONB map[string]any

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(j)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (j *JSONB) Scan(value any) error {
	b, err := jsonBytes("JSONB", value)
	if err != nil || b == nil {
		*j = nil
		return err
	}
	return json.Unmarshal(b, j)
}

// String returns the value stored under key, or "" when absent or not a string.
func (j JSONB) String(key string) string {
	if v, ok := j[key].(string); ok {
		return v
	}
	return ""
}

// StringList is an ordered list of strings stored as a JSON array column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value any) error {
	b, err := jsonBytes("StringList", value)
	if err != nil || b == nil {
		*l = nil
		return err
	}
	return json.Unmarshal(b, (*[]string)(l))
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// jsonBytes normalizes driver values: lib/pq hands back []byte, SQLite hands back string.
func jsonBytes(typeName string, value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []byte:
		if len(v) == 0 {
			return nil, nil
		}
		return v, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%s: expected []byte or string, got %T", typeName, value)
	}
}
