// Package load reads and writes serializable model definitions.
package load

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/syssam/relmeta"
	"github.com/syssam/relmeta/metadata"
)

// Schema is the serializable definition of a metadata.Model.
type Schema struct {
	Name     string    `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name,omitempty"`
	Entities []*Entity `json:"entities" yaml:"entities" msgpack:"entities"`
}

// Entity describes an entity type and the foreign keys it declares.
type Entity struct {
	Name          string        `json:"name" yaml:"name" msgpack:"name"`
	Table         string        `json:"table,omitempty" yaml:"table,omitempty" msgpack:"table,omitempty"`
	Properties    []*Property   `json:"properties" yaml:"properties" msgpack:"properties"`
	PrimaryKey    []string      `json:"primary_key,omitempty" yaml:"primary_key,omitempty,flow" msgpack:"primary_key,omitempty"`
	AlternateKeys []Key         `json:"alternate_keys,omitempty" yaml:"alternate_keys,omitempty" msgpack:"alternate_keys,omitempty"`
	ForeignKeys   []*ForeignKey `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty" msgpack:"foreign_keys,omitempty"`
}

// Property describes a scalar property.
type Property struct {
	Name     string        `json:"name" yaml:"name" msgpack:"name"`
	Type     metadata.Type `json:"type" yaml:"type" msgpack:"type"`
	Column   string        `json:"column,omitempty" yaml:"column,omitempty" msgpack:"column,omitempty"`
	Nullable bool          `json:"nullable,omitempty" yaml:"nullable,omitempty" msgpack:"nullable,omitempty"`
}

// Key is an ordered list of property names.
type Key []string

// ForeignKey describes a relationship declared on the enclosing entity.
type ForeignKey struct {
	Name         string                   `json:"name,omitempty" yaml:"name,omitempty" msgpack:"name,omitempty"`
	Properties   []string                 `json:"properties" yaml:"properties,flow" msgpack:"properties"`
	Principal    string                   `json:"principal" yaml:"principal" msgpack:"principal"`
	PrincipalKey []string                 `json:"principal_key,omitempty" yaml:"principal_key,omitempty,flow" msgpack:"principal_key,omitempty"`
	ToPrincipal  string                   `json:"to_principal,omitempty" yaml:"to_principal,omitempty" msgpack:"to_principal,omitempty"`
	ToDependent  string                   `json:"to_dependent,omitempty" yaml:"to_dependent,omitempty" msgpack:"to_dependent,omitempty"`
	Unique       bool                     `json:"unique,omitempty" yaml:"unique,omitempty" msgpack:"unique,omitempty"`
	Required     *bool                    `json:"required,omitempty" yaml:"required,omitempty" msgpack:"required,omitempty"`
	Ownership    bool                     `json:"ownership,omitempty" yaml:"ownership,omitempty" msgpack:"ownership,omitempty"`
	OnDelete     *metadata.DeleteBehavior `json:"on_delete,omitempty" yaml:"on_delete,omitempty" msgpack:"on_delete,omitempty"`
}

// ParseYAML decodes a YAML definition. Unknown fields are rejected.
func ParseYAML(data []byte) (*Schema, error) {
	s := &Schema{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("load: decoding yaml: %w", err)
	}
	return s, nil
}

// ParseJSON decodes a JSON definition. Unknown fields are rejected.
func ParseJSON(data []byte) (*Schema, error) {
	s := &Schema{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("load: decoding json: %w", err)
	}
	return s, nil
}

// ReadFile reads a definition file. The format is picked by extension:
// .yaml/.yml, .json or .msgpack.
func ReadFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	var s *Schema
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		s, err = ParseYAML(data)
	case ".json":
		s, err = ParseJSON(data)
	case ".msgpack":
		s, err = Decode(data)
	default:
		return nil, fmt.Errorf("load: unsupported file extension %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w (%s)", err, path)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// Encode returns the compact msgpack encoding of s.
func Encode(s *Schema) ([]byte, error) {
	b, err := msgpack.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("load: encoding snapshot: %w", err)
	}
	return b, nil
}

// Decode decodes a msgpack snapshot produced by Encode.
func Decode(b []byte) (*Schema, error) {
	s := &Schema{}
	if err := msgpack.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("load: decoding snapshot: %w", err)
	}
	return s, nil
}

// MarshalYAML returns the YAML form of s.
func MarshalYAML(s *Schema) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("load: encoding yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalJSON returns the indented JSON form of s.
func MarshalJSON(s *Schema) ([]byte, error) {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("load: encoding json: %w", err)
	}
	return append(b, '\n'), nil
}

// Build validates the definition and returns the frozen model. Entity
// names must be unique within the definition.
func (s *Schema) Build() (*metadata.Model, error) {
	b := metadata.NewBuilder()
	var errs []error
	seen := make(map[string]bool, len(s.Entities))
	for _, e := range s.Entities {
		if seen[e.Name] {
			errs = append(errs, relmeta.NewModelError(e.Name, "", "entity type declared more than once", nil))
			continue
		}
		seen[e.Name] = true
		var opts []metadata.EntityOption
		if e.Table != "" {
			opts = append(opts, metadata.Table(e.Table))
		}
		eb := b.Entity(e.Name, opts...)
		for _, p := range e.Properties {
			var popts []metadata.PropertyOption
			if p.Column != "" {
				popts = append(popts, metadata.Column(p.Column))
			}
			if p.Nullable {
				popts = append(popts, metadata.Nullable())
			}
			eb.Property(p.Name, p.Type, popts...)
		}
		if e.PrimaryKey != nil {
			eb.PrimaryKey(e.PrimaryKey...)
		}
		for _, k := range e.AlternateKeys {
			eb.AlternateKey(k...)
		}
		for _, fk := range e.ForeignKeys {
			b.ForeignKey(e.Name, fk.Properties, fk.Principal, fk.options()...)
		}
	}
	m, err := b.Build()
	if len(errs) == 0 {
		return m, err
	}
	var agg *relmeta.AggregateError
	if errors.As(err, &agg) {
		errs = append(errs, agg.Errors...)
	} else if err != nil {
		errs = append(errs, err)
	}
	return nil, relmeta.NewAggregateError(errs...)
}

func (fk *ForeignKey) options() []metadata.ForeignKeyOption {
	var opts []metadata.ForeignKeyOption
	if fk.Name != "" {
		opts = append(opts, metadata.ConstraintName(fk.Name))
	}
	if len(fk.PrincipalKey) > 0 {
		opts = append(opts, metadata.PrincipalKey(fk.PrincipalKey...))
	}
	if fk.ToPrincipal != "" {
		opts = append(opts, metadata.DependentToPrincipal(fk.ToPrincipal))
	}
	if fk.ToDependent != "" {
		opts = append(opts, metadata.PrincipalToDependent(fk.ToDependent))
	}
	if fk.Unique {
		opts = append(opts, metadata.Unique())
	}
	if fk.Required != nil {
		if *fk.Required {
			opts = append(opts, metadata.Required())
		} else {
			opts = append(opts, metadata.Optional())
		}
	}
	if fk.Ownership {
		opts = append(opts, metadata.Ownership())
	}
	if fk.OnDelete != nil {
		opts = append(opts, metadata.OnDelete(*fk.OnDelete))
	}
	return opts
}

// FromModel returns the definition of m. Building the result yields a model
// equivalent to m. Settings equal to the builder defaults are left out.
func FromModel(m *metadata.Model) *Schema {
	s := &Schema{}
	for _, et := range m.EntityTypes() {
		e := &Entity{Name: et.Name(), Table: et.Table()}
		for _, p := range et.Properties() {
			e.Properties = append(e.Properties, &Property{
				Name:     p.Name(),
				Type:     p.Type(),
				Column:   p.Column(),
				Nullable: p.IsNullable(),
			})
		}
		for _, k := range et.Keys() {
			if k.IsPrimaryKey() {
				e.PrimaryKey = metadata.PropertyNames(k.Properties())
				continue
			}
			e.AlternateKeys = append(e.AlternateKeys, metadata.PropertyNames(k.Properties()))
		}
		for _, fk := range et.ForeignKeys() {
			e.ForeignKeys = append(e.ForeignKeys, fromForeignKey(fk))
		}
		s.Entities = append(s.Entities, e)
	}
	return s
}

func fromForeignKey(fk *metadata.ForeignKey) *ForeignKey {
	props := fk.Properties()
	def := &ForeignKey{
		Name:       fk.Name(),
		Properties: metadata.PropertyNames(props),
		Principal:  fk.PrincipalEntityType().Name(),
		Ownership:  fk.IsOwnership(),
	}
	if !fk.PrincipalKey().IsPrimaryKey() {
		def.PrincipalKey = metadata.PropertyNames(fk.PrincipalKeyProperties())
	}
	if n := fk.DependentToPrincipal(); n != nil {
		def.ToPrincipal = n.Name()
	}
	if n := fk.PrincipalToDependent(); n != nil {
		def.ToDependent = n.Name()
	}
	if fk.IsUnique() && fk.DeclaringEntityType().FindKey(props...) == nil {
		def.Unique = true
	}
	required := !slices.ContainsFunc(props, (*metadata.Property).IsNullable)
	if fk.IsRequired() != required {
		r := fk.IsRequired()
		def.Required = &r
	}
	onDelete := metadata.ClientSetNull
	if fk.IsRequired() {
		onDelete = metadata.Cascade
	}
	if d := fk.DeleteBehavior(); d != onDelete {
		def.OnDelete = &d
	}
	return def
}
