package catalog

import (
	"bytes"
	"encoding/json"
	"sort"
	"time"

	"github.com/farellandr/cashback/internal/apperr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Patch is a partial update keyed by JSON field name. A JSON null clears an
// optional field.
type Patch map[string]json.RawMessage

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

type patchField func(raw json.RawMessage, cols map[string]interface{}) error

func decodeInto[T any](field, column string, check func(T) error) patchField {
	return func(raw json.RawMessage, cols map[string]interface{}) error {
		var v T
		if isNull(raw) {
			return apperr.Validation(field, "must not be null")
		}
		if err := json.Unmarshal(raw, &v); err != nil {
			return apperr.Validation(field, "has the wrong type")
		}
		if check != nil {
			if err := check(v); err != nil {
				return err
			}
		}
		cols[column] = v
		return nil
	}
}

func nullableTime(field, column string) patchField {
	return func(raw json.RawMessage, cols map[string]interface{}) error {
		if isNull(raw) {
			cols[column] = nil
			return nil
		}
		var t time.Time
		if err := json.Unmarshal(raw, &t); err != nil {
			return apperr.Validation(field, "must be an RFC 3339 timestamp")
		}
		cols[column] = t.UTC()
		return nil
	}
}

func nonEmpty(field string) func(string) error {
	return func(s string) error {
		if s == "" {
			return apperr.Validation(field, "is required")
		}
		return nil
	}
}

func decimalField(field, column string, check func(decimal.Decimal) error) patchField {
	return func(raw json.RawMessage, cols map[string]interface{}) error {
		if isNull(raw) {
			return apperr.Validation(field, "must not be null")
		}
		var d decimal.Decimal
		if err := json.Unmarshal(raw, &d); err != nil {
			return apperr.Validation(field, "must be a number")
		}
		if err := check(d); err != nil {
			return err
		}
		cols[column] = d.Round(2)
		return nil
	}
}

func uuidField(field, column string) patchField {
	return func(raw json.RawMessage, cols map[string]interface{}) error {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return apperr.Validation(field, "must be an id")
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return apperr.Validation(field, "must be an id")
		}
		cols[column] = id
		return nil
	}
}

// columns validates every key of p against fields and returns the column
// updates. Keys listed in immutable are rejected by name.
func (p Patch) columns(fields map[string]patchField, immutable ...string) (map[string]interface{}, error) {
	for _, key := range immutable {
		if _, ok := p[key]; ok {
			return nil, apperr.Validation(key, "cannot be changed")
		}
	}
	keys := make([]string, 0, len(p))
	for key := range p {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	cols := make(map[string]interface{}, len(p))
	for _, key := range keys {
		raw := p[key]
		apply, ok := fields[key]
		if !ok {
			return nil, apperr.Validation(key, "unknown field")
		}
		if err := apply(raw, cols); err != nil {
			return nil, err
		}
	}
	return cols, nil
}

func nullableLimit(raw json.RawMessage, cols map[string]interface{}) error {
	if isNull(raw) {
		cols["usage_limit"] = nil
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil || n <= 0 {
		return apperr.Validation("usageLimit", "must be a positive integer or null")
	}
	cols["usage_limit"] = n
	return nil
}

func categoriesField(raw json.RawMessage, cols map[string]interface{}) error {
	var cats []string
	if isNull(raw) {
		cats = []string{}
	} else if err := json.Unmarshal(raw, &cats); err != nil {
		return apperr.Validation("categories", "must be a list of strings")
	}
	for _, c := range cats {
		if c == "" {
			return apperr.Validation("categories", "must not contain empty names")
		}
	}
	cols["categories"] = cats
	return nil
}
