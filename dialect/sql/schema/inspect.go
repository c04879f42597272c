// Package schema converts between metadata models and live database schemas.
package schema

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	"ariga.io/atlas/sql/migrate"
	"ariga.io/atlas/sql/mysql"
	"ariga.io/atlas/sql/postgres"
	"ariga.io/atlas/sql/schema"
	"ariga.io/atlas/sql/sqlite"
	"golang.org/x/sync/errgroup"

	"github.com/syssam/relmeta"
	"github.com/syssam/relmeta/dialect"
	"github.com/syssam/relmeta/dialect/sql"
	"github.com/syssam/relmeta/internal/naming"
	"github.com/syssam/relmeta/load"
	"github.com/syssam/relmeta/metadata"
)

// Inspector reads the tables of a live database and converts them to a
// model definition.
type Inspector struct {
	drv      *sql.Driver
	dialect  string
	schemas  []string
	cache    relmeta.Cache
	source   string
	ttl      time.Duration
	logger   *slog.Logger
	parallel int
}

// InspectOption configures an Inspector.
type InspectOption func(*Inspector)

// WithSchemas sets the database schemas to inspect. By default the schema
// attached to the connection is inspected.
func WithSchemas(names ...string) InspectOption {
	return func(i *Inspector) { i.schemas = names }
}

// WithCache stores inspected definitions in c, keyed by the source
// identifier (e.g. a DSN without credentials) and the schema names.
func WithCache(c relmeta.Cache, source string, ttl time.Duration) InspectOption {
	return func(i *Inspector) {
		i.cache, i.source, i.ttl = c, source, ttl
	}
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) InspectOption {
	return func(i *Inspector) { i.logger = l }
}

// WithParallelism limits the number of schemas inspected concurrently.
// Default is 4.
func WithParallelism(n int) InspectOption {
	return func(i *Inspector) { i.parallel = n }
}

// NewInspector returns an Inspector for the given driver. It fails with
// relmeta.ErrUnsupportedDialect for dialects atlas cannot inspect.
func NewInspector(drv *sql.Driver, opts ...InspectOption) (*Inspector, error) {
	d, err := dialect.Normalize(drv.Dialect())
	if err != nil {
		return nil, err
	}
	i := &Inspector{drv: drv, dialect: d, logger: slog.Default(), parallel: 4}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// openAtlas opens the atlas driver of the dialect on top of eq.
func openAtlas(d string, eq sql.ExecQuerier) (migrate.Driver, error) {
	switch d {
	case dialect.SQLite:
		return sqlite.Open(eq)
	case dialect.Postgres:
		return postgres.Open(eq)
	case dialect.MySQL:
		return mysql.Open(eq)
	default:
		return nil, fmt.Errorf("%w: %q", relmeta.ErrUnsupportedDialect, d)
	}
}

// Tables returns the atlas tables of the inspected schemas.
func (i *Inspector) Tables(ctx context.Context) ([]*schema.Table, error) {
	schemas, err := i.inspect(ctx)
	if err != nil {
		return nil, err
	}
	var tables []*schema.Table
	for _, s := range schemas {
		tables = append(tables, s.Tables...)
	}
	return tables, nil
}

func (i *Inspector) inspect(ctx context.Context) ([]*schema.Schema, error) {
	drv, err := openAtlas(i.dialect, i.drv)
	if err != nil {
		return nil, &relmeta.IntrospectError{Dialect: i.dialect, Err: err}
	}
	names := i.schemas
	if len(names) == 0 {
		names = []string{""}
	}
	schemas := make([]*schema.Schema, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(i.parallel, 1))
	for idx, name := range names {
		g.Go(func() error {
			s, err := drv.InspectSchema(ctx, name, &schema.InspectOptions{Mode: schema.InspectTables})
			if err != nil {
				return &relmeta.IntrospectError{Dialect: i.dialect, Schema: name, Err: err}
			}
			i.logger.DebugContext(ctx, "inspected schema", "dialect", i.dialect, "schema", s.Name, "tables", len(s.Tables))
			schemas[idx] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return schemas, nil
}

// Definition returns the model definition of the inspected schemas. With a
// cache configured, a stored snapshot is returned when present.
func (i *Inspector) Definition(ctx context.Context) (*load.Schema, error) {
	key := relmeta.SnapshotKey{Dialect: i.dialect, Source: i.source, Schemas: i.schemas}.String()
	if i.cache != nil {
		switch b, err := i.cache.Get(ctx, key); {
		case err == nil:
			def, err := load.Decode(b)
			if err == nil {
				i.logger.DebugContext(ctx, "using cached snapshot", "key", key)
				return def, nil
			}
			i.logger.WarnContext(ctx, "dropping unreadable snapshot", "key", key, "error", err)
		case !errors.Is(err, relmeta.ErrCacheMiss):
			i.logger.WarnContext(ctx, "snapshot cache unavailable", "key", key, "error", err)
		}
	}
	schemas, err := i.inspect(ctx)
	if err != nil {
		return nil, err
	}
	def := convert(schemas, i.dialect, i.logger)
	if i.cache != nil {
		b, err := load.Encode(def)
		if err != nil {
			return nil, err
		}
		if err := i.cache.Set(ctx, key, b, i.ttl); err != nil {
			i.logger.WarnContext(ctx, "storing snapshot", "key", key, "error", err)
		}
	}
	return def, nil
}

// Inspect returns the model of the inspected schemas.
func (i *Inspector) Inspect(ctx context.Context) (*metadata.Model, error) {
	def, err := i.Definition(ctx)
	if err != nil {
		return nil, err
	}
	return def.Build()
}

// converter turns atlas schemas into a definition. Entities are keyed by
// their qualified table name.
type converter struct {
	dialect  string
	logger   *slog.Logger
	multi    bool
	entities map[string]*load.Entity
	tables   map[string]*schema.Table
	// used holds the property and navigation names taken per entity.
	used map[*load.Entity]map[string]bool
}

func convert(schemas []*schema.Schema, d string, logger *slog.Logger) *load.Schema {
	c := &converter{
		dialect:  d,
		logger:   logger,
		multi:    len(schemas) > 1,
		entities: make(map[string]*load.Entity),
		tables:   make(map[string]*schema.Table),
		used:     make(map[*load.Entity]map[string]bool),
	}
	def := &load.Schema{}
	names := make(map[string]bool)
	for _, s := range schemas {
		for _, t := range s.Tables {
			e := c.entity(s, t)
			e.Name = uniqueName(names, s.Name, e.Name)
			names[e.Name] = true
			def.Entities = append(def.Entities, e)
		}
	}
	for _, s := range schemas {
		for _, t := range s.Tables {
			c.foreignKeys(s, t)
		}
	}
	return def
}

func (c *converter) qualify(s *schema.Schema, table string) string {
	if c.multi && s != nil && s.Name != "" {
		return s.Name + "." + table
	}
	return table
}

func (c *converter) entity(s *schema.Schema, t *schema.Table) *load.Entity {
	e := &load.Entity{
		Name:  naming.EntityName(t.Name),
		Table: c.qualify(s, t.Name),
	}
	used := make(map[string]bool, len(t.Columns))
	var pk []string
	if t.PrimaryKey != nil {
		pk = columnNames(t.PrimaryKey)
	}
	for _, col := range t.Columns {
		p := &load.Property{
			Name:     col.Name,
			Type:     propertyType(c.dialect, col.Type),
			Nullable: col.Type != nil && col.Type.Null && !slices.Contains(pk, col.Name),
		}
		if naming.Snake(col.Name) != col.Name {
			p.Column = col.Name
		}
		e.Properties = append(e.Properties, p)
		used[col.Name] = true
	}
	e.PrimaryKey = pk
	for _, idx := range t.Indexes {
		cols := columnNames(idx)
		if !idx.Unique || cols == nil || slices.Equal(cols, pk) {
			continue
		}
		if slices.ContainsFunc(e.AlternateKeys, func(k load.Key) bool { return slices.Equal([]string(k), cols) }) {
			continue
		}
		e.AlternateKeys = append(e.AlternateKeys, cols)
	}
	key := c.qualify(s, t.Name)
	c.entities[key] = e
	c.tables[key] = t
	c.used[e] = used
	return e
}

func (c *converter) foreignKeys(s *schema.Schema, t *schema.Table) {
	dep := c.entities[c.qualify(s, t.Name)]
	for _, fk := range t.ForeignKeys {
		log := c.logger.With("table", t.Name, "constraint", fk.Symbol)
		refSchema := s
		if fk.RefTable.Schema != nil {
			refSchema = fk.RefTable.Schema
		}
		principal, ok := c.entities[c.qualify(refSchema, fk.RefTable.Name)]
		if !ok {
			log.Warn("skipping foreign key to uninspected table", "ref_table", fk.RefTable.Name)
			continue
		}
		cols, refs := names(fk.Columns), names(fk.RefColumns)
		principalKey, ok := matchKey(principal, cols, refs)
		if !ok {
			log.Warn("skipping foreign key to columns that are not a key", "ref_table", fk.RefTable.Name, "ref_columns", refs)
			continue
		}
		def := &load.ForeignKey{
			Name:      fk.Symbol,
			Principal: principal.Name,
		}
		def.Properties, def.PrincipalKey = principalKey.dependent, principalKey.principal
		if slices.Equal(def.PrincipalKey, principal.PrimaryKey) {
			def.PrincipalKey = nil
		}
		onDelete := deleteBehavior(fk.OnDelete)
		def.OnDelete = &onDelete
		required := true
		for _, p := range dep.Properties {
			if slices.Contains(def.Properties, p.Name) && p.Nullable {
				required = false
			}
		}
		def.Required = &required
		def.ToPrincipal = c.claim(dep, toPrincipalNames(def.Properties, principal.Name)...)
		unique := isKey(dep, def.Properties)
		def.ToDependent = c.claim(principal, toDependentNames(dep.Name, def.ToPrincipal, unique)...)
		dep.ForeignKeys = append(dep.ForeignKeys, def)
	}
}

// uniqueName returns name, or when taken, name prefixed with its schema
// and numbered until it is free.
func uniqueName(taken map[string]bool, schemaName, name string) string {
	if !taken[name] {
		return name
	}
	base := naming.Pascal(schemaName) + name
	name = base
	for i := 2; taken[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	return name
}

// claim returns the first candidate name not used on e and marks it used.
// It returns "" if all candidates are taken.
func (c *converter) claim(e *load.Entity, candidates ...string) string {
	used := c.used[e]
	for _, n := range candidates {
		if n != "" && !used[n] {
			used[n] = true
			return n
		}
	}
	return ""
}

func toPrincipalNames(props []string, principal string) []string {
	var candidates []string
	for i := len(props) - 1; i >= 0; i-- {
		if n := naming.NavigationName(props[i]); n != "" {
			candidates = append(candidates, naming.Camel(n))
			break
		}
	}
	return append(candidates, naming.Camel(principal))
}

func toDependentNames(dependent, toPrincipal string, unique bool) []string {
	name := naming.Camel(dependent)
	if !unique {
		name = naming.Plural(name)
	}
	candidates := []string{name}
	if toPrincipal != "" {
		candidates = append(candidates, toPrincipal+naming.Pascal(name))
	}
	return candidates
}

type keyPairs struct {
	dependent, principal []string
}

// matchKey finds the key of the principal that refs covers. Column pairs
// are reordered to follow the key when refs lists them in another order.
func matchKey(principal *load.Entity, cols, refs []string) (keyPairs, bool) {
	keys := append([]load.Key{principal.PrimaryKey}, principal.AlternateKeys...)
	for _, k := range keys {
		if len(k) != len(refs) || len(k) == 0 {
			continue
		}
		pairs := keyPairs{dependent: make([]string, 0, len(k)), principal: k}
		for _, p := range k {
			i := slices.Index(refs, p)
			if i < 0 {
				break
			}
			pairs.dependent = append(pairs.dependent, cols[i])
		}
		if len(pairs.dependent) == len(k) {
			return pairs, true
		}
	}
	return keyPairs{}, false
}

func isKey(e *load.Entity, props []string) bool {
	if slices.Equal(e.PrimaryKey, props) {
		return true
	}
	return slices.ContainsFunc(e.AlternateKeys, func(k load.Key) bool { return slices.Equal([]string(k), props) })
}

func columnNames(idx *schema.Index) []string {
	cols := make([]string, 0, len(idx.Parts))
	for _, p := range idx.Parts {
		if p.C == nil {
			return nil
		}
		cols = append(cols, p.C.Name)
	}
	return cols
}

func names(cols []*schema.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// propertyType maps an atlas column type to a property type.
func propertyType(d string, ct *schema.ColumnType) metadata.Type {
	if ct == nil {
		return metadata.TypeOther
	}
	switch t := ct.Type.(type) {
	case *schema.BoolType:
		return metadata.TypeBool
	case *schema.IntegerType:
		name := strings.ToLower(t.T)
		switch {
		case t.Unsigned && strings.Contains(name, "big"), name == "uint64", name == "unsigned big int":
			return metadata.TypeUint64
		case strings.Contains(name, "big"), name == "int8", d == dialect.SQLite && name == "integer":
			return metadata.TypeInt64
		default:
			return metadata.TypeInt
		}
	case *schema.FloatType:
		return metadata.TypeFloat64
	case *schema.StringType, *schema.EnumType:
		return metadata.TypeString
	case *schema.BinaryType:
		return metadata.TypeBytes
	case *schema.UUIDType:
		return metadata.TypeUUID
	case *schema.TimeType:
		return metadata.TypeTime
	default:
		return metadata.TypeOther
	}
}

func deleteBehavior(o schema.ReferenceOption) metadata.DeleteBehavior {
	switch o {
	case schema.Cascade:
		return metadata.Cascade
	case schema.SetNull:
		return metadata.SetNull
	case schema.Restrict:
		return metadata.Restrict
	default:
		return metadata.NoAction
	}
}
