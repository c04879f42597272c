package metadata

import (
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/relmeta"
	"github.com/syssam/relmeta/internal/naming"
)

// Builder assembles a Model. It is not safe for concurrent use; Build
// validates the collected definitions and returns a frozen Model.
type Builder struct {
	entities []*EntityBuilder
	byName   map[string]*EntityBuilder
	fks      []*fkDef
}

// NewBuilder returns an empty model builder.
func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]*EntityBuilder)}
}

type (
	// EntityBuilder collects the definition of one entity type.
	EntityBuilder struct {
		name  string
		table string
		props []*propDef
		pk    []string
		hasPK bool
		alt   [][]string
	}

	// EntityOption configures an entity type.
	EntityOption func(*EntityBuilder)

	propDef struct {
		name     string
		typ      Type
		column   string
		nullable bool
	}

	// PropertyOption configures a property.
	PropertyOption func(*propDef)

	fkDef struct {
		dependent   string
		properties  []string
		principal   string
		principalPK []string
		name        string
		toPrincipal string
		toDependent string
		unique      bool
		required    *bool
		ownership   bool
		onDelete    *DeleteBehavior
	}

	// ForeignKeyOption configures a foreign key.
	ForeignKeyOption func(*fkDef)
)

// Table sets the table name of an entity type. The default is the plural
// snake_case form of the entity name.
func Table(name string) EntityOption {
	return func(e *EntityBuilder) { e.table = name }
}

// Nullable marks a property as accepting null values.
func Nullable() PropertyOption {
	return func(p *propDef) { p.nullable = true }
}

// Column sets the column name of a property. The default is the
// snake_case form of the property name.
func Column(name string) PropertyOption {
	return func(p *propDef) { p.column = name }
}

// PrincipalKey selects the principal key by its properties. The default is
// the principal's primary key. If no key over these properties exists, an
// alternate key is added to the principal.
func PrincipalKey(properties ...string) ForeignKeyOption {
	return func(f *fkDef) { f.principalPK = properties }
}

// ConstraintName sets the foreign key name. The default is
// "<table>_<columns>_fkey".
func ConstraintName(name string) ForeignKeyOption {
	return func(f *fkDef) { f.name = name }
}

// DependentToPrincipal names the navigation declared on the dependent.
func DependentToPrincipal(name string) ForeignKeyOption {
	return func(f *fkDef) { f.toPrincipal = name }
}

// PrincipalToDependent names the navigation declared on the principal.
func PrincipalToDependent(name string) ForeignKeyOption {
	return func(f *fkDef) { f.toDependent = name }
}

// Unique marks the relationship as one-to-one.
func Unique() ForeignKeyOption {
	return func(f *fkDef) { f.unique = true }
}

// Required marks the relationship as required regardless of property nullability.
func Required() ForeignKeyOption {
	return func(f *fkDef) { v := true; f.required = &v }
}

// Optional marks the relationship as optional regardless of property nullability.
func Optional() ForeignKeyOption {
	return func(f *fkDef) { v := false; f.required = &v }
}

// Ownership marks the principal as the owner of its dependents.
func Ownership() ForeignKeyOption {
	return func(f *fkDef) { f.ownership = true }
}

// OnDelete sets the delete behavior. The default is Cascade for required
// relationships and ClientSetNull for optional ones.
func OnDelete(b DeleteBehavior) ForeignKeyOption {
	return func(f *fkDef) { f.onDelete = &b }
}

// Entity returns the builder of the named entity type, creating it on
// first use. Options are applied on every call.
func (b *Builder) Entity(name string, opts ...EntityOption) *EntityBuilder {
	e, ok := b.byName[name]
	if !ok {
		e = &EntityBuilder{name: name}
		b.byName[name] = e
		b.entities = append(b.entities, e)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Property adds a property to the entity type.
func (e *EntityBuilder) Property(name string, typ Type, opts ...PropertyOption) *EntityBuilder {
	p := &propDef{name: name, typ: typ}
	for _, opt := range opts {
		opt(p)
	}
	e.props = append(e.props, p)
	return e
}

// PrimaryKey sets the primary key properties.
func (e *EntityBuilder) PrimaryKey(properties ...string) *EntityBuilder {
	e.pk = properties
	e.hasPK = true
	return e
}

// AlternateKey adds an alternate (unique) key.
func (e *EntityBuilder) AlternateKey(properties ...string) *EntityBuilder {
	e.alt = append(e.alt, properties)
	return e
}

// ForeignKey adds a relationship from the dependent properties of the
// dependent entity type to a key of the principal entity type.
func (b *Builder) ForeignKey(dependent string, properties []string, principal string, opts ...ForeignKeyOption) *Builder {
	f := &fkDef{
		dependent:  dependent,
		properties: slices.Clone(properties),
		principal:  principal,
	}
	for _, opt := range opts {
		opt(f)
	}
	b.fks = append(b.fks, f)
	return b
}

// Build validates the definitions and returns the frozen model. All
// definition errors are reported together.
func (b *Builder) Build() (*Model, error) {
	var (
		errs   []error
		m      = &Model{byName: make(map[string]*EntityType, len(b.entities))}
		tables = make(map[string]string)
	)
	for _, eb := range b.entities {
		et, err := buildEntity(m, eb)
		errs = append(errs, err...)
		if et == nil {
			continue
		}
		if other, ok := tables[et.table]; ok {
			errs = append(errs, relmeta.NewModelError(et.name, "", fmt.Sprintf("table %q already mapped by %s", et.table, other), nil))
		}
		tables[et.table] = et.name
		m.entityTypes = append(m.entityTypes, et)
		m.byName[et.name] = et
	}
	names := make(map[string]bool)
	for _, f := range b.fks {
		fk, err := buildForeignKey(m, f)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if names[fk.name] {
			errs = append(errs, fkError(f, fmt.Sprintf("constraint name %q already used", fk.name), nil))
			continue
		}
		names[fk.name] = true
		attach(m, fk)
	}
	if err := relmeta.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func buildEntity(m *Model, eb *EntityBuilder) (*EntityType, []error) {
	if strings.TrimSpace(eb.name) == "" {
		return nil, []error{relmeta.NewModelError("", "", "entity type name cannot be empty", nil)}
	}
	var errs []error
	et := &EntityType{
		model:  m,
		name:   eb.name,
		table:  eb.table,
		byName: make(map[string]*Property, len(eb.props)),
	}
	if et.table == "" {
		et.table = naming.TableName(eb.name)
	}
	columns := make(map[string]string, len(eb.props))
	for _, pd := range eb.props {
		switch {
		case strings.TrimSpace(pd.name) == "":
			errs = append(errs, relmeta.NewModelError(et.name, "", "property name cannot be empty", nil))
			continue
		case et.byName[pd.name] != nil:
			errs = append(errs, relmeta.NewModelError(et.name, pd.name, "property redeclared", nil))
			continue
		case !pd.typ.Valid():
			errs = append(errs, relmeta.NewModelError(et.name, pd.name, fmt.Sprintf("invalid property type %s", pd.typ), nil))
			continue
		}
		p := &Property{
			declaring: et,
			name:      pd.name,
			column:    pd.column,
			typ:       pd.typ,
			nullable:  pd.nullable,
		}
		if p.column == "" {
			p.column = naming.Snake(pd.name)
		}
		if other, ok := columns[p.column]; ok {
			errs = append(errs, relmeta.NewModelError(et.name, pd.name, fmt.Sprintf("column %q already mapped by property %s", p.column, other), nil))
			continue
		}
		columns[p.column] = p.name
		et.properties = append(et.properties, p)
		et.byName[p.name] = p
	}
	if eb.hasPK {
		k, err := et.newKey(eb.pk, true)
		if err != nil {
			errs = append(errs, err)
		} else {
			et.primaryKey = k
		}
	}
	for _, alt := range eb.alt {
		if _, err := et.newKey(alt, false); err != nil {
			errs = append(errs, err)
		}
	}
	return et, errs
}

// newKey resolves and adds a key to the entity type.
func (e *EntityType) newKey(names []string, primary bool) (*Key, error) {
	kind := "alternate key"
	if primary {
		kind = "primary key"
	}
	if len(names) == 0 {
		return nil, relmeta.NewModelError(e.name, "", kind+" must have at least one property", nil)
	}
	props := make([]*Property, 0, len(names))
	for _, n := range names {
		p := e.byName[n]
		if p == nil {
			return nil, relmeta.NewModelError(e.name, n, kind+" references unknown property", relmeta.ErrPropertyNotFound)
		}
		if slices.Contains(props, p) {
			return nil, relmeta.NewModelError(e.name, n, kind+" repeats property", nil)
		}
		if primary && p.nullable {
			return nil, relmeta.NewModelError(e.name, n, "primary key property cannot be nullable", nil)
		}
		props = append(props, p)
	}
	if e.FindKey(props...) != nil {
		return nil, relmeta.NewModelError(e.name, "", fmt.Sprintf("key %s defined more than once", propertyList(props)), nil)
	}
	k := &Key{declaring: e, properties: props, primary: primary}
	if primary {
		e.keys = append([]*Key{k}, e.keys...)
	} else {
		e.keys = append(e.keys, k)
	}
	for _, p := range props {
		p.keys = append(p.keys, k)
	}
	return k, nil
}

func fkError(f *fkDef, message string, cause error) error {
	return relmeta.NewForeignKeyError(f.dependent, f.properties, f.principal, message, cause)
}

func buildForeignKey(m *Model, f *fkDef) (*ForeignKey, error) {
	dep := m.byName[f.dependent]
	if dep == nil {
		return nil, fkError(f, "unknown dependent entity type", relmeta.ErrEntityTypeNotFound)
	}
	prin := m.byName[f.principal]
	if prin == nil {
		return nil, fkError(f, "unknown principal entity type", relmeta.ErrEntityTypeNotFound)
	}
	if len(f.properties) == 0 {
		return nil, fkError(f, "foreign key must have at least one property", nil)
	}
	props := make([]*Property, 0, len(f.properties))
	for _, n := range f.properties {
		p := dep.byName[n]
		if p == nil {
			return nil, fkError(f, fmt.Sprintf("unknown dependent property %q", n), relmeta.ErrPropertyNotFound)
		}
		if slices.Contains(props, p) {
			return nil, fkError(f, fmt.Sprintf("dependent property %q repeated", n), nil)
		}
		props = append(props, p)
	}
	var pk *Key
	if len(f.principalPK) == 0 {
		if pk = prin.primaryKey; pk == nil {
			return nil, fkError(f, "principal entity type has no primary key", nil)
		}
	} else {
		pprops := prin.FindProperties(f.principalPK...)
		if pprops == nil {
			return nil, fkError(f, fmt.Sprintf("unknown principal key properties %v", f.principalPK), relmeta.ErrPropertyNotFound)
		}
		if pk = prin.FindKey(pprops...); pk == nil {
			k, err := prin.newKey(f.principalPK, false)
			if err != nil {
				return nil, fkError(f, "adding principal key", err)
			}
			pk = k
		}
	}
	if len(props) != len(pk.properties) {
		return nil, fkError(f, fmt.Sprintf("%d dependent properties for %d principal key properties %s",
			len(props), len(pk.properties), propertyList(pk.properties)), nil)
	}
	for i, p := range props {
		if pp := pk.properties[i]; !compatible(p.typ, pp.typ) {
			return nil, fkError(f, fmt.Sprintf("property %q of type %s does not match principal property %q of type %s",
				p.name, p.typ, pp.name, pp.typ), nil)
		}
	}
	for _, other := range dep.foreignKeys {
		if slices.Equal(other.properties, props) && other.principalKey == pk {
			return nil, fkError(f, "foreign key defined more than once", nil)
		}
	}
	fk := &ForeignKey{
		name:         f.name,
		declaring:    dep,
		principal:    prin,
		properties:   props,
		principalKey: pk,
		unique:       f.unique || dep.FindKey(props...) != nil,
		ownership:    f.ownership,
	}
	if fk.name == "" {
		fk.name = dep.table + "_" + strings.Join(PropertyColumns(props), "_") + "_fkey"
	}
	fk.required = !slices.ContainsFunc(props, (*Property).IsNullable)
	if f.required != nil {
		fk.required = *f.required
	}
	switch {
	case f.onDelete != nil:
		fk.onDelete = *f.onDelete
	case fk.required:
		fk.onDelete = Cascade
	default:
		fk.onDelete = ClientSetNull
	}
	if f.toPrincipal != "" {
		if err := checkNavigationName(dep, f.toPrincipal, ""); err != nil {
			return nil, fkError(f, err.Error(), nil)
		}
		fk.toPrincipal = &Navigation{name: f.toPrincipal, fk: fk, onDependent: true}
	}
	if f.toDependent != "" {
		taken := ""
		if prin == dep {
			taken = f.toPrincipal
		}
		if err := checkNavigationName(prin, f.toDependent, taken); err != nil {
			return nil, fkError(f, err.Error(), nil)
		}
		fk.toDependent = &Navigation{name: f.toDependent, fk: fk}
	}
	if fk.ownership && fk.toDependent == nil {
		return nil, fkError(f, "ownership requires a principal-to-dependent navigation", nil)
	}
	return fk, nil
}

// compatible reports if a dependent property of type d can reference a
// principal property of type p. TypeInt and TypeInt64 share a key-value
// representation and may be mixed.
func compatible(d, p Type) bool {
	signed := func(t Type) bool { return t == TypeInt || t == TypeInt64 }
	return d == p || (signed(d) && signed(p))
}

func checkNavigationName(et *EntityType, name, taken string) error {
	switch {
	case et.byName[name] != nil:
		return fmt.Errorf("navigation %q conflicts with a property of %s", name, et.name)
	case et.FindNavigation(name) != nil || name == taken:
		return fmt.Errorf("navigation %q already declared on %s", name, et.name)
	}
	return nil
}

// attach links a validated foreign key into the model.
func attach(m *Model, fk *ForeignKey) {
	fk.declaring.foreignKeys = append(fk.declaring.foreignKeys, fk)
	fk.principal.referencing = append(fk.principal.referencing, fk)
	fk.principalKey.referencing = append(fk.principalKey.referencing, fk)
	for _, p := range fk.properties {
		p.foreignKeys = append(p.foreignKeys, fk)
	}
	if fk.toPrincipal != nil {
		fk.declaring.navigations = append(fk.declaring.navigations, fk.toPrincipal)
	}
	if fk.toDependent != nil {
		fk.principal.navigations = append(fk.principal.navigations, fk.toDependent)
	}
	m.foreignKeys = append(m.foreignKeys, fk)
}
