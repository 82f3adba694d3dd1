package schema

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/truthlayer/truth-mcp/internal/models"
)

// ConverterFunc is a deterministic pure function from one field type's
// value representation to another's.
type ConverterFunc func(value any) (any, error)

type convKey struct {
	from models.FieldType
	to   models.FieldType
}

// RegisterConverter installs (or overrides) a converter for a (from, to)
// type pair. Safe to call while snapshots are being computed.
func (r *Registry) RegisterConverter(from, to models.FieldType, fn ConverterFunc) {
	r.convMu.Lock()
	defer r.convMu.Unlock()
	r.convs[convKey{from, to}] = fn
}

// Convert coerces value to the declared field type. The bool reports
// whether any conversion ran (false when the value already matches). A
// missing converter yields ErrUnconvertibleType; the caller decides whether
// that is fatal (strict) or degrades to the raw value (lenient).
func (r *Registry) Convert(value any, def models.FieldDefinition) (any, bool, error) {
	from := InferType(value)
	to := def.Type
	if from == to {
		if to == models.FieldEnum {
			return value, false, checkEnum(value, def)
		}
		return value, false, nil
	}
	r.convMu.RLock()
	fn, ok := r.convs[convKey{from, to}]
	r.convMu.RUnlock()
	if !ok {
		return nil, false, fmt.Errorf("no converter from %s to %s: %w", from, to, models.ErrUnconvertibleType)
	}
	out, err := fn(value)
	if err != nil {
		return nil, false, fmt.Errorf("convert %s to %s: %v: %w", from, to, err, models.ErrUnconvertibleType)
	}
	if to == models.FieldEnum {
		if err := checkEnum(out, def); err != nil {
			return nil, false, err
		}
	}
	return out, true, nil
}

// InferType tags a JSON-decoded value with its native field type.
func InferType(v any) models.FieldType {
	switch v.(type) {
	case string:
		return models.FieldString
	case float64, int, int64, float32:
		return models.FieldNumber
	case bool:
		return models.FieldBoolean
	case []any:
		return models.FieldArray
	case map[string]any:
		return models.FieldObject
	default:
		return models.FieldString
	}
}

func checkEnum(v any, def models.FieldDefinition) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("enum value %v is not a string: %w", v, models.ErrUnconvertibleType)
	}
	for _, allowed := range def.Enum {
		if s == allowed {
			return nil
		}
	}
	return fmt.Errorf("value %q not in enum %v: %w", s, def.Enum, models.ErrUnconvertibleType)
}

// dateLayouts are tried in order when coercing strings to dates.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

func (r *Registry) registerBuiltins() {
	r.RegisterConverter(models.FieldString, models.FieldNumber, func(v any) (any, error) {
		s := strings.TrimSpace(v.(string))
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not numeric", s)
		}
		return n, nil
	})
	r.RegisterConverter(models.FieldNumber, models.FieldString, func(v any) (any, error) {
		return strconv.FormatFloat(toFloat(v), 'f', -1, 64), nil
	})
	r.RegisterConverter(models.FieldString, models.FieldBoolean, func(v any) (any, error) {
		b, err := strconv.ParseBool(strings.TrimSpace(v.(string)))
		if err != nil {
			return nil, fmt.Errorf("%q is not boolean", v)
		}
		return b, nil
	})
	r.RegisterConverter(models.FieldNumber, models.FieldBoolean, func(v any) (any, error) {
		return toFloat(v) != 0, nil
	})
	r.RegisterConverter(models.FieldString, models.FieldDate, func(v any) (any, error) {
		s := strings.TrimSpace(v.(string))
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC().Format(time.RFC3339), nil
			}
		}
		return nil, fmt.Errorf("%q is not a recognized date", s)
	})
	// Dates and enums are stored as strings; crossing to plain string is
	// the identity.
	r.RegisterConverter(models.FieldDate, models.FieldString, func(v any) (any, error) {
		return v, nil
	})
	r.RegisterConverter(models.FieldString, models.FieldEnum, func(v any) (any, error) {
		return v, nil
	})
	r.RegisterConverter(models.FieldEnum, models.FieldString, func(v any) (any, error) {
		return v, nil
	})
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
