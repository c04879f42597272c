package metadata

import (
	"fmt"
	"slices"
	"strings"
)

// The following types are the read side of a model. They are created by
// Builder.Build and never change afterwards, so all accessors are safe for
// concurrent use. Slices returned by accessors are shared with the model
// and must not be modified.
type (
	// Model is a frozen set of entity types and the relationships between them.
	Model struct {
		entityTypes []*EntityType
		byName      map[string]*EntityType
		foreignKeys []*ForeignKey
	}

	// EntityType is one mapped type of the model and its table.
	EntityType struct {
		model *Model
		name  string
		table string
		// properties in declaration order.
		properties []*Property
		byName     map[string]*Property
		primaryKey *Key
		// keys holds the primary key first, then alternate keys.
		keys []*Key
		// foreignKeys declared on this type (this type is the dependent).
		foreignKeys []*ForeignKey
		// referencing foreign keys target a key of this type.
		referencing []*ForeignKey
		navigations []*Navigation
	}

	// Property is a scalar value of an entity type, mapped to one column.
	Property struct {
		declaring *EntityType
		name      string
		column    string
		typ       Type
		nullable  bool
		// foreignKeys holds the foreign keys that contain this property
		// among their dependent properties.
		foreignKeys []*ForeignKey
		keys        []*Key
	}

	// Key is a primary or alternate key: an ordered set of properties that
	// uniquely identifies an instance of its entity type.
	Key struct {
		declaring   *EntityType
		properties  []*Property
		primary     bool
		referencing []*ForeignKey
	}
)

// EntityTypes returns the entity types in declaration order.
func (m *Model) EntityTypes() []*EntityType { return slices.Clip(m.entityTypes) }

// FindEntityType returns the entity type with the given name, or nil.
func (m *Model) FindEntityType(name string) *EntityType { return m.byName[name] }

// ForeignKeys returns every foreign key of the model in definition order.
func (m *Model) ForeignKeys() []*ForeignKey { return slices.Clip(m.foreignKeys) }

// String returns a multi-line debug view of the model.
func (m *Model) String() string {
	var b strings.Builder
	b.WriteString("Model:\n")
	for _, et := range m.entityTypes {
		et.debug(&b, "  ")
	}
	return b.String()
}

// Model returns the model the entity type belongs to.
func (e *EntityType) Model() *Model { return e.model }

// Name returns the entity type name.
func (e *EntityType) Name() string { return e.name }

// Table returns the table the entity type is mapped to.
func (e *EntityType) Table() string { return e.table }

// Properties returns the properties in declaration order.
func (e *EntityType) Properties() []*Property { return slices.Clip(e.properties) }

// FindProperty returns the property with the given name, or nil.
func (e *EntityType) FindProperty(name string) *Property { return e.byName[name] }

// FindProperties returns the properties with the given names, in order.
// It returns nil if any of the names is unknown.
func (e *EntityType) FindProperties(names ...string) []*Property {
	props := make([]*Property, 0, len(names))
	for _, n := range names {
		p := e.byName[n]
		if p == nil {
			return nil
		}
		props = append(props, p)
	}
	return props
}

// PrimaryKey returns the primary key, or nil for keyless entity types.
func (e *EntityType) PrimaryKey() *Key { return e.primaryKey }

// Keys returns the primary key (if any) followed by the alternate keys.
func (e *EntityType) Keys() []*Key { return slices.Clip(e.keys) }

// FindKey returns the key defined over exactly the given properties, in
// order, or nil.
func (e *EntityType) FindKey(props ...*Property) *Key {
	for _, k := range e.keys {
		if slices.Equal(k.properties, props) {
			return k
		}
	}
	return nil
}

// ForeignKeys returns the foreign keys declared on this entity type.
func (e *EntityType) ForeignKeys() []*ForeignKey { return slices.Clip(e.foreignKeys) }

// FindForeignKeys returns the foreign keys declared on this entity type whose
// dependent properties are exactly the given ones, in order.
func (e *EntityType) FindForeignKeys(props ...*Property) []*ForeignKey {
	var fks []*ForeignKey
	for _, fk := range e.foreignKeys {
		if slices.Equal(fk.properties, props) {
			fks = append(fks, fk)
		}
	}
	return fks
}

// ReferencingForeignKeys returns the foreign keys that target a key of this
// entity type.
func (e *EntityType) ReferencingForeignKeys() []*ForeignKey { return slices.Clip(e.referencing) }

// Navigations returns the navigations declared on this entity type.
func (e *EntityType) Navigations() []*Navigation { return slices.Clip(e.navigations) }

// FindNavigation returns the navigation with the given name, or nil.
func (e *EntityType) FindNavigation(name string) *Navigation {
	for _, n := range e.navigations {
		if n.name == name {
			return n
		}
	}
	return nil
}

// String returns the entity type name.
func (e *EntityType) String() string { return e.name }

func (e *EntityType) debug(b *strings.Builder, indent string) {
	fmt.Fprintf(b, "%sEntityType: %s (%s)\n", indent, e.name, e.table)
	b.WriteString(indent + "  Properties:\n")
	for _, p := range e.properties {
		fmt.Fprintf(b, "%s    %s\n", indent, p.debugString())
	}
	if len(e.keys) > 0 {
		b.WriteString(indent + "  Keys:\n")
		for _, k := range e.keys {
			fmt.Fprintf(b, "%s    %s\n", indent, k)
		}
	}
	if len(e.foreignKeys) > 0 {
		b.WriteString(indent + "  Foreign keys:\n")
		for _, fk := range e.foreignKeys {
			fmt.Fprintf(b, "%s    %s\n", indent, fk)
		}
	}
	if len(e.navigations) > 0 {
		b.WriteString(indent + "  Navigations:\n")
		for _, n := range e.navigations {
			fmt.Fprintf(b, "%s    %s\n", indent, n)
		}
	}
}

// DeclaringEntityType returns the entity type the property belongs to.
func (p *Property) DeclaringEntityType() *EntityType { return p.declaring }

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Column returns the column the property is mapped to.
func (p *Property) Column() string { return p.column }

// Type returns the property value type.
func (p *Property) Type() Type { return p.typ }

// IsNullable reports if the property accepts null values.
func (p *Property) IsNullable() bool { return p.nullable }

// ContainingForeignKeys returns the foreign keys that use this property as
// one of their dependent properties.
func (p *Property) ContainingForeignKeys() []*ForeignKey { return slices.Clip(p.foreignKeys) }

// ContainingForeignKeyCount returns len(ContainingForeignKeys()).
func (p *Property) ContainingForeignKeyCount() int { return len(p.foreignKeys) }

// ContainingKeys returns the keys that include this property.
func (p *Property) ContainingKeys() []*Key { return slices.Clip(p.keys) }

// IsForeignKey reports if the property is part of at least one foreign key.
func (p *Property) IsForeignKey() bool { return len(p.foreignKeys) > 0 }

// IsKey reports if the property is part of at least one key.
func (p *Property) IsKey() bool { return len(p.keys) > 0 }

// IsPrimaryKey reports if the property is part of the primary key.
func (p *Property) IsPrimaryKey() bool {
	for _, k := range p.keys {
		if k.primary {
			return true
		}
	}
	return false
}

// String returns the qualified property name, e.g. "Pet.owner_id".
func (p *Property) String() string {
	if p.declaring == nil {
		return p.name
	}
	return p.declaring.name + "." + p.name
}

func (p *Property) debugString() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s", p.name, p.typ)
	if p.column != p.name {
		fmt.Fprintf(&b, ", column %s", p.column)
	}
	b.WriteString(")")
	if p.nullable {
		b.WriteString(" Nullable")
	}
	if p.IsPrimaryKey() {
		b.WriteString(" PK")
	}
	if p.IsForeignKey() {
		b.WriteString(" FK")
	}
	return b.String()
}

// DeclaringEntityType returns the entity type the key belongs to.
func (k *Key) DeclaringEntityType() *EntityType { return k.declaring }

// Properties returns the key properties in order.
func (k *Key) Properties() []*Property { return slices.Clip(k.properties) }

// IsPrimaryKey reports if this is the primary key of its entity type.
func (k *Key) IsPrimaryKey() bool { return k.primary }

// ReferencingForeignKeys returns the foreign keys that target this key.
func (k *Key) ReferencingForeignKeys() []*ForeignKey { return slices.Clip(k.referencing) }

// PrincipalKeyValueFactory returns a factory that builds key values from the
// key properties of a principal instance.
func (k *Key) PrincipalKeyValueFactory() *KeyValueFactory {
	return newKeyValueFactory(k.properties)
}

// String returns the key in "{a, b} PK" form.
func (k *Key) String() string {
	s := propertyList(k.properties)
	if k.primary {
		s += " PK"
	}
	return s
}

// propertyList formats property names as "{a, b}".
func propertyList(props []*Property) string {
	return "{" + strings.Join(PropertyNames(props), ", ") + "}"
}

// PropertyNames returns the names of the given properties.
func PropertyNames(props []*Property) []string {
	names := make([]string, len(props))
	for i, p := range props {
		names[i] = p.name
	}
	return names
}

// PropertyColumns returns the columns of the given properties.
func PropertyColumns(props []*Property) []string {
	cols := make([]string, len(props))
	for i, p := range props {
		cols[i] = p.column
	}
	return cols
}
