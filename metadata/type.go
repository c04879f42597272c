package metadata

import (
	"fmt"
	"strings"
)

// Type is the value kind of a property. It drives key-value normalization.
type Type uint8

// Property value types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeInt64
	TypeUint64
	TypeFloat64
	TypeString
	TypeBytes
	TypeUUID
	TypeTime
	TypeOther
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeInt64:   "int64",
	TypeUint64:  "uint64",
	TypeFloat64: "float64",
	TypeString:  "string",
	TypeBytes:   "bytes",
	TypeUUID:    "uuid",
	TypeTime:    "time",
	TypeOther:   "other",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", t)
}

// Valid reports if the type is a known, non-invalid type.
func (t Type) Valid() bool {
	return t > TypeInvalid && t <= TypeOther
}

// Integer reports if the type is an integer type.
func (t Type) Integer() bool {
	return t == TypeInt || t == TypeInt64 || t == TypeUint64
}

// ParseType returns the Type for its name. A few common aliases are accepted.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "bool", "boolean":
		return TypeBool, nil
	case "int", "integer", "int32":
		return TypeInt, nil
	case "int64", "bigint":
		return TypeInt64, nil
	case "uint64", "uint":
		return TypeUint64, nil
	case "float64", "float", "double":
		return TypeFloat64, nil
	case "string", "text":
		return TypeString, nil
	case "bytes", "binary", "blob":
		return TypeBytes, nil
	case "uuid":
		return TypeUUID, nil
	case "time", "timestamp", "datetime":
		return TypeTime, nil
	case "other":
		return TypeOther, nil
	}
	return TypeInvalid, fmt.Errorf("unknown property type %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Type) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Type) UnmarshalText(text []byte) error {
	v, err := ParseType(string(text))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// DeleteBehavior is the action taken on dependents when their principal is deleted.
type DeleteBehavior uint8

// Delete behaviors. The Client* variants are applied by the application on
// tracked dependents only; the database constraint is left as NO ACTION.
const (
	ClientSetNull DeleteBehavior = iota
	Restrict
	SetNull
	Cascade
	ClientCascade
	NoAction
	ClientNoAction
)

var deleteBehaviorNames = [...]string{
	ClientSetNull:  "ClientSetNull",
	Restrict:       "Restrict",
	SetNull:        "SetNull",
	Cascade:        "Cascade",
	ClientCascade:  "ClientCascade",
	NoAction:       "NoAction",
	ClientNoAction: "ClientNoAction",
}

// String returns the delete behavior name.
func (d DeleteBehavior) String() string {
	if int(d) < len(deleteBehaviorNames) {
		return deleteBehaviorNames[d]
	}
	return fmt.Sprintf("DeleteBehavior(%d)", d)
}

// ParseDeleteBehavior parses a delete behavior name, case-insensitively.
// SQL spellings ("CASCADE", "SET NULL", "NO ACTION") are accepted too.
func ParseDeleteBehavior(s string) (DeleteBehavior, error) {
	norm := strings.ToLower(strings.NewReplacer(" ", "", "_", "", "-", "").Replace(s))
	for i, name := range deleteBehaviorNames {
		if strings.ToLower(name) == norm {
			return DeleteBehavior(i), nil
		}
	}
	return 0, fmt.Errorf("unknown delete behavior %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (d DeleteBehavior) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DeleteBehavior) UnmarshalText(text []byte) error {
	v, err := ParseDeleteBehavior(string(text))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
