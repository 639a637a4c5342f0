// Package record converts records between their logical form (attribute
// name -> logical value) and the native form stored in SQLite (column name
// -> native value).
//
// Both directions mutate the record in place.
package record

import (
	"encoding/json"
	"log/slog"
	"maps"
	"math"
	"strconv"
	"time"

	"github.com/roach88/litequery/internal/canonjson"
	"github.com/roach88/litequery/internal/dberr"
	"github.com/roach88/litequery/internal/model"
	"github.com/roach88/litequery/internal/querysql"
)

// Record is a flat mapping from attribute or column name to value.
type Record map[string]any

// Marshaler converts records for one or more models.
type Marshaler struct {
	logger *slog.Logger
}

// NewMarshaler creates a Marshaler. A nil logger uses slog.Default().
func NewMarshaler(logger *slog.Logger) *Marshaler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Marshaler{logger: logger}
}

var defaultMarshaler = NewMarshaler(nil)

// ToNative converts values with the default Marshaler.
func ToNative(values Record, m *model.Model) error {
	return defaultMarshaler.ToNative(values, m)
}

// ToLogical converts rec with the default Marshaler.
func ToLogical(rec Record, m *model.Model) {
	defaultMarshaler.ToLogical(rec, m)
}

// ToNative converts logical values to native column values in place, renaming
// attribute keys to column keys.
//
// Conversions:
//   - json: canonical JSON text (nil stays NULL)
//   - boolean: 1 or 0
//   - ref: time.Time as ISO-8601 text in UTC
//   - primary key: nil removes the column so the database assigns one;
//     anything other than a string or number fails with E_INVALID_PK
//
// Keys that are already column names are accepted. Unknown keys fail with
// ConsistencyViolation.
func (mm *Marshaler) ToNative(values Record, m *model.Model) error {
	out := make(Record, len(values))
	for key, v := range values {
		attr, ok := m.Attribute(key)
		if !ok {
			attr, ok = m.AttributeByColumn(key)
		}
		if !ok {
			return dberr.Consistency(dberr.CodeUnknownAttribute, "unknown attribute %q on %q", key, m.Identity)
		}

		if attr.Name == m.PrimaryKey {
			if v == nil {
				continue
			}
			if !isKeyValue(v) {
				return dberr.Malformed(dberr.CodeInvalidPK,
					"primary key %q of %q must be a string or number, got %T", attr.Name, m.Identity, v)
			}
			out[attr.ColumnName] = v
			continue
		}

		native, err := toNativeValue(attr, v)
		if err != nil {
			return err
		}
		out[attr.ColumnName] = native
	}

	clear(values)
	maps.Copy(values, out)
	return nil
}

func toNativeValue(attr *model.Attribute, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch attr.Type {
	case model.TypeJSON:
		text, err := canonjson.MarshalString(v)
		if err != nil {
			return nil, dberr.Malformed(dberr.CodeMalformedQuery, "attribute %q: %v", attr.Name, err)
		}
		return text, nil
	case model.TypeBoolean:
		if b, ok := v.(bool); ok {
			if b {
				return int64(1), nil
			}
			return int64(0), nil
		}
	case model.TypeRef:
		switch t := v.(type) {
		case time.Time:
			return t.UTC().Format(querysql.TimeFormat), nil
		case *time.Time:
			if t == nil {
				return nil, nil
			}
			return t.UTC().Format(querysql.TimeFormat), nil
		}
	case model.TypeNumber:
		if n, ok := v.(json.Number); ok {
			return Number(n), nil
		}
	}
	return v, nil
}

// ToLogical converts a native row to logical values in place, renaming
// column keys to attribute keys. Keys matching neither a column nor an
// attribute are left untouched.
//
// Conversions:
//   - json: text parsed; unparseable text is logged and kept as-is
//   - boolean: truthiness (nil, zero, "" and false are false)
//   - ref: RFC 3339, SQLite datetime or date-only text parsed to time.Time;
//     other text kept as-is
//   - number: int64 when integral, float64 otherwise
//   - string: []byte becomes string
func (mm *Marshaler) ToLogical(rec Record, m *model.Model) {
	out := make(Record, len(rec))
	for key, v := range rec {
		attr, ok := m.AttributeByColumn(key)
		if !ok {
			attr, ok = m.Attribute(key)
		}
		if !ok {
			out[key] = v
			continue
		}
		out[attr.Name] = mm.toLogicalValue(m, attr, v)
	}

	clear(rec)
	maps.Copy(rec, out)
}

func (mm *Marshaler) toLogicalValue(m *model.Model, attr *model.Attribute, v any) any {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}

	switch attr.Type {
	case model.TypeJSON:
		text, ok := v.(string)
		if !ok {
			return v
		}
		parsed, err := canonjson.ParseString(text)
		if err != nil {
			mm.logger.Warn("json attribute not parseable, keeping raw text",
				"model", m.Identity,
				"attribute", attr.Name,
				"error", err)
			return text
		}
		return parsed
	case model.TypeBoolean:
		return Truthy(v)
	case model.TypeRef:
		if text, ok := v.(string); ok {
			if t, ok := parseDate(text); ok {
				return t
			}
		}
		return v
	case model.TypeNumber:
		if v == nil {
			return nil
		}
		return Number(v)
	}
	return v
}

// dateLayouts are tried in order when reading ref columns. Layouts without
// a zone parse as UTC, matching SQLite's datetime functions.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDate(text string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Truthy reports the truthiness of a native value: nil, numeric zero, the
// empty string and false are false; everything else is true.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		return val != ""
	case []byte:
		return len(val) > 0
	case int64:
		return val != 0
	case int:
		return val != 0
	case int32:
		return val != 0
	case float64:
		return val != 0 && !math.IsNaN(val)
	case float32:
		return val != 0
	}
	return true
}

// Number coerces a native numeric value to int64 when integral and float64
// otherwise. Numeric strings are parsed; other values are returned as-is.
func Number(v any) any {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int16:
		return int64(n)
	case int8:
		return int64(n)
	case uint32:
		return int64(n)
	case uint16:
		return int64(n)
	case uint8:
		return int64(n)
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
		return float64(n)
	case uint:
		if uint64(n) <= math.MaxInt64 {
			return int64(n)
		}
		return float64(n)
	case float32:
		return Number(float64(n))
	case float64:
		if n == math.Trunc(n) && math.Abs(n) <= 1<<53 {
			return int64(n)
		}
		return n
	case json.Number:
		return Number(n.String())
	case []byte:
		return Number(string(n))
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return Number(f)
		}
	}
	return v
}

// Key normalizes a primary or foreign key value so keys read from different
// columns (INTEGER vs REAL, TEXT vs BLOB) compare equal.
func Key(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	if _, ok := v.(string); ok {
		return v
	}
	return Number(v)
}

// Int64 converts a native integer key to int64.
func Int64(v any) (int64, bool) {
	n, ok := Number(v).(int64)
	return n, ok
}

func isKeyValue(v any) bool {
	switch v.(type) {
	case string, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}
