package relmeta

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common failure cases.
var (
	// ErrInvalidModel is returned when a model definition fails validation.
	ErrInvalidModel = errors.New("relmeta: invalid model")

	// ErrInvalidForeignKey is returned when a foreign-key definition is malformed.
	ErrInvalidForeignKey = errors.New("relmeta: invalid foreign key")

	// ErrEntityTypeNotFound is returned when an entity type lookup fails.
	ErrEntityTypeNotFound = errors.New("relmeta: entity type not found")

	// ErrPropertyNotFound is returned when a property lookup fails.
	ErrPropertyNotFound = errors.New("relmeta: property not found")

	// ErrEntityTypeNotInRelationship is returned when a navigation lookup is
	// made with an entity type that is neither end of the relationship.
	ErrEntityTypeNotInRelationship = errors.New("relmeta: entity type is not part of the relationship")

	// ErrNullKeyValue is returned when a key value cannot be created because
	// one of its parts is missing or nil.
	ErrNullKeyValue = errors.New("relmeta: key value contains null")

	// ErrUnsupportedDialect is returned for database dialects without an inspector.
	ErrUnsupportedDialect = errors.New("relmeta: unsupported dialect")

	// ErrCacheMiss is returned by Cache implementations when a key is absent.
	ErrCacheMiss = errors.New("relmeta: cache miss")
)

// ModelError represents an entity-type or property definition error.
type ModelError struct {
	Entity   string // Entity type name
	Property string // Property name (if applicable)
	Message  string
	Cause    error
}

// Error implements the error interface.
func (e *ModelError) Error() string {
	var b strings.Builder
	b.WriteString("relmeta: model error")
	if e.Entity != "" {
		b.WriteString(" on entity ")
		b.WriteString(e.Entity)
	}
	if e.Property != "" {
		b.WriteString(" property ")
		b.WriteString(e.Property)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ModelError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for ModelError.
func (e *ModelError) Is(target error) bool {
	return target == ErrInvalidModel
}

// NewModelError returns a new ModelError.
func NewModelError(entity, property, message string, cause error) *ModelError {
	return &ModelError{
		Entity:   entity,
		Property: property,
		Message:  message,
		Cause:    cause,
	}
}

// IsModelError returns true if the error is a ModelError.
func IsModelError(err error) bool {
	if err == nil {
		return false
	}
	var e *ModelError
	return errors.As(err, &e)
}

// ForeignKeyError represents a foreign-key definition or lookup error.
type ForeignKeyError struct {
	Dependent  string   // Dependent entity type
	Principal  string   // Principal entity type
	Properties []string // Dependent property names
	Message    string
	Cause      error
}

// Error implements the error interface.
func (e *ForeignKeyError) Error() string {
	var b strings.Builder
	b.WriteString("relmeta: foreign key error")
	if e.Dependent != "" {
		b.WriteString(" on ")
		b.WriteString(e.Dependent)
		if len(e.Properties) > 0 {
			b.WriteString("(")
			b.WriteString(strings.Join(e.Properties, ", "))
			b.WriteString(")")
		}
	}
	if e.Principal != "" {
		b.WriteString(" -> ")
		b.WriteString(e.Principal)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *ForeignKeyError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches the sentinel error for ForeignKeyError.
// Navigation lookup errors are not definition errors and only match
// ErrEntityTypeNotInRelationship, through Unwrap.
func (e *ForeignKeyError) Is(target error) bool {
	return target == ErrInvalidForeignKey && !errors.Is(e.Cause, ErrEntityTypeNotInRelationship)
}

// NewForeignKeyError returns a new ForeignKeyError.
func NewForeignKeyError(dependent string, properties []string, principal, message string, cause error) *ForeignKeyError {
	return &ForeignKeyError{
		Dependent:  dependent,
		Properties: properties,
		Principal:  principal,
		Message:    message,
		Cause:      cause,
	}
}

// IsForeignKeyError returns true if the error is a ForeignKeyError.
func IsForeignKeyError(err error) bool {
	if err == nil {
		return false
	}
	var e *ForeignKeyError
	return errors.As(err, &e)
}

// KeyValueError represents a failure to build a key value from entity values.
type KeyValueError struct {
	Property string // Property whose value failed, if any
	Value    any
	Message  string
}

// Error implements the error interface.
func (e *KeyValueError) Error() string {
	if e.Property != "" {
		return fmt.Sprintf("relmeta: key value for %q (value: %v): %s", e.Property, e.Value, e.Message)
	}
	return fmt.Sprintf("relmeta: key value: %s", e.Message)
}

// NewKeyValueError returns a new KeyValueError.
func NewKeyValueError(property string, value any, message string) *KeyValueError {
	return &KeyValueError{Property: property, Value: value, Message: message}
}

// IsKeyValueError returns true if the error is a KeyValueError.
func IsKeyValueError(err error) bool {
	if err == nil {
		return false
	}
	var e *KeyValueError
	return errors.As(err, &e)
}

// IntrospectError wraps a database inspection error with its context.
type IntrospectError struct {
	Dialect string // Database dialect
	Schema  string // Schema being inspected, if any
	Table   string // Table being converted, if any
	Err     error  // Underlying error
}

// Error returns the error string.
func (e *IntrospectError) Error() string {
	var b strings.Builder
	b.WriteString("relmeta: inspecting ")
	b.WriteString(e.Dialect)
	if e.Schema != "" {
		b.WriteString(" schema ")
		b.WriteString(e.Schema)
	}
	if e.Table != "" {
		b.WriteString(" table ")
		b.WriteString(e.Table)
	}
	b.WriteString(": ")
	fmt.Fprint(&b, e.Err)
	return b.String()
}

// Unwrap returns the underlying error.
func (e *IntrospectError) Unwrap() error {
	return e.Err
}

// IsIntrospectError returns true if the error is an IntrospectError.
func IsIntrospectError(err error) bool {
	if err == nil {
		return false
	}
	var e *IntrospectError
	return errors.As(err, &e)
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "relmeta: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("relmeta: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors so errors.Is and errors.As see each of them.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
