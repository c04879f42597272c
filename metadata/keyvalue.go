package metadata

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"math"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/relmeta"
)

// ValueReader reads the current value of a property from an entity instance.
// The second result is false if the instance has no value for the property.
type ValueReader interface {
	Value(p *Property) (any, bool)
}

// ValueReaderFunc adapts a function to a ValueReader.
type ValueReaderFunc func(p *Property) (any, bool)

// Value implements ValueReader.
func (f ValueReaderFunc) Value(p *Property) (any, bool) { return f(p) }

// Row is a ValueReader over values keyed by property name.
type Row map[string]any

// Value implements ValueReader.
func (r Row) Value(p *Property) (any, bool) {
	v, ok := r[p.name]
	return v, ok
}

// ColumnRow is a ValueReader over values keyed by column name, as scanned
// from a database row.
type ColumnRow map[string]any

// Value implements ValueReader.
func (r ColumnRow) Value(p *Property) (any, bool) {
	v, ok := r[p.column]
	return v, ok
}

// KeyValueFactory builds KeyValues for an ordered set of properties.
// A factory is immutable and safe for concurrent use.
type KeyValueFactory struct {
	properties []*Property
}

func newKeyValueFactory(props []*Property) *KeyValueFactory {
	return &KeyValueFactory{properties: props}
}

// Properties returns the properties the factory reads.
func (f *KeyValueFactory) Properties() []*Property { return slices.Clip(f.properties) }

// Create reads the factory properties from r and returns their key value.
// It returns relmeta.ErrNullKeyValue if any part is missing or nil, and a
// *relmeta.KeyValueError if a value does not fit its property type.
func (f *KeyValueFactory) Create(r ValueReader) (KeyValue, error) {
	values := make([]any, len(f.properties))
	for i, p := range f.properties {
		v, ok := r.Value(p)
		if !ok {
			return KeyValue{}, fmt.Errorf("%w: %s", relmeta.ErrNullKeyValue, p)
		}
		nv, err := normalize(p, v)
		if err != nil {
			return KeyValue{}, err
		}
		values[i] = nv
	}
	return KeyValue{values: values}, nil
}

// TryCreate is like Create, but reports failure as false.
func (f *KeyValueFactory) TryCreate(r ValueReader) (KeyValue, bool) {
	k, err := f.Create(r)
	return k, err == nil
}

// FromValues returns the key value of the given values, one per property.
func (f *KeyValueFactory) FromValues(values ...any) (KeyValue, error) {
	if len(values) != len(f.properties) {
		return KeyValue{}, relmeta.NewKeyValueError("", nil,
			fmt.Sprintf("expected %d values for %s, got %d", len(f.properties), propertyList(f.properties), len(values)))
	}
	out := make([]any, len(values))
	for i, p := range f.properties {
		nv, err := normalize(p, values[i])
		if err != nil {
			return KeyValue{}, err
		}
		out[i] = nv
	}
	return KeyValue{values: out}, nil
}

// KeyValue is the normalized value of a (possibly composite) key. Key values
// built from the dependent side and the principal side of a relationship are
// equal when they refer to the same principal.
type KeyValue struct {
	values []any
}

// Values returns the normalized parts of the key.
func (k KeyValue) Values() []any { return slices.Clone(k.values) }

// Len returns the number of parts.
func (k KeyValue) Len() int { return len(k.values) }

// IsZero reports if the key value was never set.
func (k KeyValue) IsZero() bool { return k.values == nil }

// Equal reports if both key values have equal parts.
func (k KeyValue) Equal(o KeyValue) bool {
	if len(k.values) != len(o.values) {
		return false
	}
	for i := range k.values {
		if !equalPart(k.values[i], o.values[i]) {
			return false
		}
	}
	return true
}

// MapKey returns a compact, stable encoding of the key value for use as a
// map key.
func (k KeyValue) MapKey() (string, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(k.values); err != nil {
		return "", fmt.Errorf("relmeta: encoding key value: %w", err)
	}
	return buf.String(), nil
}

// String returns the key value in "{1, abc}" form.
func (k KeyValue) String() string {
	parts := make([]string, len(k.values))
	for i, v := range k.values {
		parts[i] = fmt.Sprint(v)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func equalPart(a, b any) bool {
	switch a := a.(type) {
	case []byte:
		b, ok := b.([]byte)
		return ok && bytes.Equal(a, b)
	case time.Time:
		b, ok := b.(time.Time)
		return ok && a.Equal(b)
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta != nil && ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}

var (
	uuidType   = reflect.TypeOf(uuid.UUID{})
	valuerType = reflect.TypeOf((*driver.Valuer)(nil)).Elem()
)

// normalize converts v to the canonical Go representation of the property
// type, so that dependent and principal values compare equal.
func normalize(p *Property, v any) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("%w: %s", relmeta.ErrNullKeyValue, p)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: %s", relmeta.ErrNullKeyValue, p)
		}
		if !rv.Type().Implements(valuerType) {
			return normalize(p, rv.Elem().Interface())
		}
	}
	if nv, ok, err := convert(p.typ, rv); ok || err != nil {
		if err != nil {
			return nil, relmeta.NewKeyValueError(p.name, v, err.Error())
		}
		return nv, nil
	}
	if valuer, ok := v.(driver.Valuer); ok {
		dv, err := valuer.Value()
		if err != nil {
			return nil, relmeta.NewKeyValueError(p.name, v, err.Error())
		}
		return normalize(p, dv)
	}
	return nil, relmeta.NewKeyValueError(p.name, v, fmt.Sprintf("cannot use %T as %s", v, p.typ))
}

// convert reports ok=false when v has no direct conversion to t.
func convert(t Type, rv reflect.Value) (any, bool, error) {
	switch t {
	case TypeBool:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), true, nil
		}
	case TypeInt, TypeInt64:
		switch {
		case rv.CanInt():
			return rv.Int(), true, nil
		case rv.CanUint():
			u := rv.Uint()
			if u > math.MaxInt64 {
				return nil, false, fmt.Errorf("value %d overflows int64", u)
			}
			return int64(u), true, nil
		}
	case TypeUint64:
		switch {
		case rv.CanUint():
			return rv.Uint(), true, nil
		case rv.CanInt():
			i := rv.Int()
			if i < 0 {
				return nil, false, fmt.Errorf("negative value %d for uint64", i)
			}
			return uint64(i), true, nil
		}
	case TypeFloat64:
		switch {
		case rv.CanFloat():
			return rv.Float(), true, nil
		case rv.CanInt():
			return float64(rv.Int()), true, nil
		case rv.CanUint():
			return float64(rv.Uint()), true, nil
		}
	case TypeString:
		switch {
		case rv.Kind() == reflect.String:
			return rv.String(), true, nil
		case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
			return string(rv.Bytes()), true, nil
		}
	case TypeBytes:
		switch {
		case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
			return bytes.Clone(rv.Bytes()), true, nil
		case rv.Kind() == reflect.String:
			return []byte(rv.String()), true, nil
		}
	case TypeUUID:
		return convertUUID(rv)
	case TypeTime:
		if tm, ok := rv.Interface().(time.Time); ok {
			return tm.UTC(), true, nil
		}
	case TypeOther:
		return rv.Interface(), true, nil
	}
	return nil, false, nil
}

func convertUUID(rv reflect.Value) (any, bool, error) {
	switch {
	case rv.Type() == uuidType:
		return rv.Interface().(uuid.UUID), true, nil
	case rv.Kind() == reflect.Array && rv.Len() == 16 && rv.Type().Elem().Kind() == reflect.Uint8:
		var id uuid.UUID
		reflect.Copy(reflect.ValueOf(id[:]), rv)
		return id, true, nil
	case rv.Kind() == reflect.String:
		id, err := uuid.Parse(rv.String())
		if err != nil {
			return nil, false, err
		}
		return id, true, nil
	case rv.Kind() == reflect.Slice && rv.Type().Elem().Kind() == reflect.Uint8:
		b := rv.Bytes()
		if len(b) == 16 {
			id, err := uuid.FromBytes(b)
			return id, err == nil, err
		}
		id, err := uuid.ParseBytes(b)
		if err != nil {
			return nil, false, err
		}
		return id, true, nil
	}
	return nil, false, nil
}
