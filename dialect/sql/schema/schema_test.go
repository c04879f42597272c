package schema

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"ariga.io/atlas/sql/schema"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/relmeta"
	"github.com/syssam/relmeta/dialect"
	"github.com/syssam/relmeta/dialect/sql"
	"github.com/syssam/relmeta/load"
	"github.com/syssam/relmeta/metadata"
)

// shopModel returns a multi-tenant model where the composite foreign keys
// of order lines share the tenant column.
func shopModel(t *testing.T) *metadata.Model {
	t.Helper()
	b := metadata.NewBuilder()
	b.Entity("Tenant").
		Property("id", metadata.TypeInt64).
		Property("name", metadata.TypeString).
		PrimaryKey("id").
		AlternateKey("name")
	b.Entity("Order").
		Property("tenant_id", metadata.TypeInt64).
		Property("id", metadata.TypeInt64).
		Property("placed_at", metadata.TypeTime, metadata.Nullable()).
		PrimaryKey("tenant_id", "id")
	b.Entity("Product").
		Property("tenant_id", metadata.TypeInt64).
		Property("id", metadata.TypeInt64).
		Property("price", metadata.TypeFloat64).
		PrimaryKey("tenant_id", "id")
	b.Entity("OrderLine").
		Property("tenant_id", metadata.TypeInt64).
		Property("id", metadata.TypeInt64).
		Property("order_id", metadata.TypeInt64).
		Property("product_id", metadata.TypeInt64).
		Property("quantity", metadata.TypeInt).
		PrimaryKey("tenant_id", "id")
	b.ForeignKey("Order", []string{"tenant_id"}, "Tenant",
		metadata.DependentToPrincipal("tenant"), metadata.PrincipalToDependent("orders"))
	b.ForeignKey("OrderLine", []string{"tenant_id", "order_id"}, "Order",
		metadata.DependentToPrincipal("order"), metadata.PrincipalToDependent("orderLines"))
	b.ForeignKey("OrderLine", []string{"tenant_id", "product_id"}, "Product",
		metadata.DependentToPrincipal("product"), metadata.OnDelete(metadata.Restrict))
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

// blogModel returns a model with an optional and an alternate-key foreign key.
func blogModel(t *testing.T) *metadata.Model {
	t.Helper()
	b := metadata.NewBuilder()
	b.Entity("User").
		Property("id", metadata.TypeInt64).
		Property("email", metadata.TypeString).
		PrimaryKey("id").
		AlternateKey("email")
	b.Entity("Pet").
		Property("id", metadata.TypeInt64).
		Property("owner_id", metadata.TypeInt64, metadata.Nullable()).
		PrimaryKey("id")
	b.Entity("Profile").
		Property("id", metadata.TypeInt64).
		Property("user_email", metadata.TypeString).
		PrimaryKey("id")
	b.ForeignKey("Pet", []string{"owner_id"}, "User",
		metadata.DependentToPrincipal("owner"), metadata.PrincipalToDependent("pets"), metadata.OnDelete(metadata.SetNull))
	b.ForeignKey("Profile", []string{"user_email"}, "User",
		metadata.PrincipalKey("email"), metadata.Unique())
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func openSQLite(t *testing.T) *sql.Driver {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	drv, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&_pragma=foreign_keys(1)", name))
	require.NoError(t, err)
	// Every connection to a memory database sees its own database.
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })
	return drv
}

func exec(t *testing.T, drv *sql.Driver, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := drv.ExecContext(context.Background(), s)
		require.NoError(t, err, s)
	}
}

func indexNames(t *schema.Table) []string {
	var names []string
	for _, idx := range t.Indexes {
		names = append(names, idx.Name)
	}
	return names
}

func TestExport(t *testing.T) {
	s, err := Export(shopModel(t), dialect.Postgres, "public")
	require.NoError(t, err)
	require.Equal(t, "public", s.Name)
	require.Len(t, s.Tables, 4)

	tenants, ok := s.Table("tenants")
	require.True(t, ok)
	require.Equal(t, []string{"tenants_name_key"}, indexNames(tenants))
	require.True(t, tenants.Indexes[0].Unique)

	orders, ok := s.Table("orders")
	require.True(t, ok)
	require.Equal(t, []string{"tenant_id", "id"}, columnNames(orders.PrimaryKey))
	// tenant_id leads the primary key.
	require.Empty(t, orders.Indexes)
	require.Len(t, orders.ForeignKeys, 1)
	require.Equal(t, schema.Cascade, orders.ForeignKeys[0].OnDelete)
	placed, ok := orders.Column("placed_at")
	require.True(t, ok)
	require.True(t, placed.Type.Null)
	require.Equal(t, &schema.TimeType{T: "timestamp"}, placed.Type.Type)

	lines, ok := s.Table("order_lines")
	require.True(t, ok)
	require.Equal(t, []string{"order_lines_order_id_idx", "order_lines_product_id_idx"}, indexNames(lines))
	require.Len(t, lines.ForeignKeys, 2)
	fk := lines.ForeignKeys[0]
	require.Equal(t, "order_lines_tenant_id_order_id_fkey", fk.Symbol)
	require.Equal(t, []string{"tenant_id", "order_id"}, names(fk.Columns))
	require.Equal(t, []string{"tenant_id", "id"}, names(fk.RefColumns))
	require.Same(t, orders, fk.RefTable)
	require.Equal(t, schema.Restrict, lines.ForeignKeys[1].OnDelete)
	quantity, ok := lines.Column("quantity")
	require.True(t, ok)
	require.Equal(t, &schema.IntegerType{T: "integer"}, quantity.Type.Type)
}

func TestExport_Blog(t *testing.T) {
	s, err := Export(blogModel(t), "sqlite3", "")
	require.NoError(t, err)

	pets, ok := s.Table("pets")
	require.True(t, ok)
	require.Equal(t, []string{"pets_owner_id_idx"}, indexNames(pets))
	require.Equal(t, schema.SetNull, pets.ForeignKeys[0].OnDelete)

	// The unique foreign key has no alternate key of its own on profiles.
	profiles, ok := s.Table("profiles")
	require.True(t, ok)
	require.Equal(t, []string{"profiles_user_email_idx"}, indexNames(profiles))
	require.Equal(t, []string{"email"}, names(profiles.ForeignKeys[0].RefColumns))
	require.Equal(t, schema.NoAction, referenceOption(metadata.ClientSetNull))

	_, err = Export(blogModel(t), "oracle", "")
	require.ErrorIs(t, err, relmeta.ErrUnsupportedDialect)
}

func TestColumnType(t *testing.T) {
	tests := []struct {
		dialect string
		typ     metadata.Type
		want    schema.Type
	}{
		{dialect.Postgres, metadata.TypeBool, &schema.BoolType{T: "boolean"}},
		{dialect.MySQL, metadata.TypeInt, &schema.IntegerType{T: "int"}},
		{dialect.Postgres, metadata.TypeInt, &schema.IntegerType{T: "integer"}},
		{dialect.SQLite, metadata.TypeInt64, &schema.IntegerType{T: "integer"}},
		{dialect.MySQL, metadata.TypeUint64, &schema.IntegerType{T: "bigint", Unsigned: true}},
		{dialect.SQLite, metadata.TypeUint64, &schema.IntegerType{T: "uint64"}},
		{dialect.Postgres, metadata.TypeFloat64, &schema.FloatType{T: "double precision"}},
		{dialect.MySQL, metadata.TypeString, &schema.StringType{T: "varchar", Size: 255}},
		{dialect.Postgres, metadata.TypeBytes, &schema.BinaryType{T: "bytea"}},
		{dialect.MySQL, metadata.TypeUUID, &schema.StringType{T: "char", Size: 36}},
		{dialect.SQLite, metadata.TypeTime, &schema.TimeType{T: "datetime"}},
		{dialect.Postgres, metadata.TypeOther, &schema.JSONType{T: "json"}},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.typ.String(), func(t *testing.T) {
			got, err := columnType(tt.dialect, tt.typ)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
	_, err := columnType(dialect.SQLite, metadata.TypeInvalid)
	require.EqualError(t, err, "unsupported property type invalid")
}

func TestPropertyType(t *testing.T) {
	tests := []struct {
		dialect string
		typ     schema.Type
		want    metadata.Type
	}{
		{dialect.SQLite, &schema.BoolType{T: "boolean"}, metadata.TypeBool},
		{dialect.SQLite, &schema.IntegerType{T: "integer"}, metadata.TypeInt64},
		{dialect.SQLite, &schema.IntegerType{T: "int"}, metadata.TypeInt},
		{dialect.SQLite, &schema.IntegerType{T: "uint64"}, metadata.TypeUint64},
		{dialect.Postgres, &schema.IntegerType{T: "integer"}, metadata.TypeInt},
		{dialect.Postgres, &schema.IntegerType{T: "bigint"}, metadata.TypeInt64},
		{dialect.Postgres, &schema.IntegerType{T: "int8"}, metadata.TypeInt64},
		{dialect.MySQL, &schema.IntegerType{T: "bigint", Unsigned: true}, metadata.TypeUint64},
		{dialect.MySQL, &schema.IntegerType{T: "smallint"}, metadata.TypeInt},
		{dialect.MySQL, &schema.FloatType{T: "double"}, metadata.TypeFloat64},
		{dialect.MySQL, &schema.EnumType{T: "enum", Values: []string{"a"}}, metadata.TypeString},
		{dialect.Postgres, &schema.BinaryType{T: "bytea"}, metadata.TypeBytes},
		{dialect.Postgres, &schema.UUIDType{T: "uuid"}, metadata.TypeUUID},
		{dialect.Postgres, &schema.TimeType{T: "timestamp"}, metadata.TypeTime},
		{dialect.Postgres, &schema.DecimalType{T: "numeric"}, metadata.TypeOther},
		{dialect.Postgres, &schema.JSONType{T: "jsonb"}, metadata.TypeOther},
	}
	for _, tt := range tests {
		got := propertyType(tt.dialect, &schema.ColumnType{Type: tt.typ})
		assert.Equal(t, tt.want, got, "%s %T", tt.dialect, tt.typ)
	}
	require.Equal(t, metadata.TypeOther, propertyType(dialect.SQLite, nil))
}

func TestMatchKey(t *testing.T) {
	order := &load.Entity{
		Name:          "Order",
		PrimaryKey:    []string{"tenant_id", "id"},
		AlternateKeys: []load.Key{{"code"}},
	}
	got, ok := matchKey(order, []string{"order_id", "tenant_id"}, []string{"id", "tenant_id"})
	require.True(t, ok)
	require.Equal(t, []string{"tenant_id", "order_id"}, got.dependent)
	require.Equal(t, []string{"tenant_id", "id"}, got.principal)

	got, ok = matchKey(order, []string{"order_code"}, []string{"code"})
	require.True(t, ok)
	require.Equal(t, []string{"order_code"}, got.dependent)
	require.Equal(t, []string{"code"}, got.principal)

	_, ok = matchKey(order, []string{"order_id"}, []string{"id"})
	require.False(t, ok)
	_, ok = matchKey(&load.Entity{Name: "Log"}, []string{"log_id"}, []string{"id"})
	require.False(t, ok)
}

func TestNavigationNames(t *testing.T) {
	require.Equal(t, []string{"order", "order"}, toPrincipalNames([]string{"tenant_id", "order_id"}, "Order"))
	require.Equal(t, []string{"parentNode", "node"}, toPrincipalNames([]string{"parent_node_id"}, "Node"))
	require.Equal(t, []string{"user"}, toPrincipalNames([]string{"user_email"}, "User"))
	require.Equal(t, []string{"pets", "ownerPets"}, toDependentNames("Pet", "owner", false))
	require.Equal(t, []string{"profile", "userProfile"}, toDependentNames("Profile", "user", true))
	require.Equal(t, []string{"comments"}, toDependentNames("Comment", "", false))

	c := &converter{used: make(map[*load.Entity]map[string]bool)}
	e := &load.Entity{Name: "Employee"}
	c.used[e] = map[string]bool{"manager": true}
	require.Equal(t, "employee", c.claim(e, "manager", "employee"))
	require.Empty(t, c.claim(e, "manager", "employee"))
}

func TestApplyInspect(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	m := shopModel(t)

	created, err := Apply(ctx, drv, m)
	require.NoError(t, err)
	require.Equal(t, []string{"tenants", "orders", "products", "order_lines"}, created)
	created, err = Apply(ctx, drv, m)
	require.NoError(t, err)
	require.Empty(t, created)

	insp, err := NewInspector(drv)
	require.NoError(t, err)
	got, err := insp.Inspect(ctx)
	require.NoError(t, err)
	require.Len(t, got.EntityTypes(), 4)

	tenant := got.FindEntityType("Tenant")
	require.NotNil(t, tenant)
	require.Equal(t, "tenants", tenant.Table())
	require.Len(t, tenant.Keys(), 2)

	order := got.FindEntityType("Order")
	require.NotNil(t, order)
	require.Equal(t, metadata.TypeTime, order.FindProperty("placed_at").Type())
	require.True(t, order.FindProperty("placed_at").IsNullable())
	require.Equal(t, []string{"tenant_id", "id"}, metadata.PropertyNames(order.PrimaryKey().Properties()))
	require.Same(t, order, tenant.FindNavigation("orders").TargetEntityType())

	line := got.FindEntityType("OrderLine")
	require.NotNil(t, line)
	require.Equal(t, metadata.TypeInt, line.FindProperty("quantity").Type())
	require.Len(t, line.ForeignKeys(), 2)
	var toOrder *metadata.ForeignKey
	for _, fk := range line.ForeignKeys() {
		if fk.Name() == "order_lines_tenant_id_order_id_fkey" {
			toOrder = fk
		}
	}
	require.NotNil(t, toOrder)
	require.Same(t, order, toOrder.PrincipalEntityType())
	require.Equal(t, []string{"tenant_id", "order_id"}, metadata.PropertyNames(toOrder.Properties()))
	require.Equal(t, "order", toOrder.DependentToPrincipal().Name())
	require.Equal(t, "orderLines", toOrder.PrincipalToDependent().Name())
	require.True(t, toOrder.IsRequired())
	require.Equal(t, metadata.Cascade, toOrder.DeleteBehavior())
	dep, prin := toOrder.MinimalOverlap()
	require.Equal(t, []string{"order_id"}, metadata.PropertyNames(dep))
	require.Equal(t, []string{"id"}, metadata.PropertyNames(prin))

	tables, err := insp.Tables(ctx)
	require.NoError(t, err)
	result := ValidateModel(m, dialect.SQLite, tables)
	require.Equal(t, "No issues found", result.String())

	for _, tbl := range tables {
		if tbl.Name == "order_lines" {
			require.ElementsMatch(t, []string{"order_lines_order_id_idx", "order_lines_product_id_idx"}, indexNames(tbl))
		}
	}
}

func TestInspect_Naming(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	exec(t, drv,
		"CREATE TABLE employees (id integer NOT NULL, name text NOT NULL, title text NOT NULL, manager_id integer, PRIMARY KEY (id), "+
			"CONSTRAINT employees_manager_id_fkey FOREIGN KEY (manager_id) REFERENCES employees (id) ON DELETE SET NULL)",
		"CREATE UNIQUE INDEX employees_name_key ON employees (name)",
		"CREATE TABLE badges (id integer NOT NULL, holder text NOT NULL, title_ref text NOT NULL, PRIMARY KEY (id), "+
			"CONSTRAINT badges_holder_fkey FOREIGN KEY (holder) REFERENCES employees (name), "+
			"CONSTRAINT badges_title_ref_fkey FOREIGN KEY (title_ref) REFERENCES employees (title))",
	)
	var buf bytes.Buffer
	insp, err := NewInspector(drv, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	require.NoError(t, err)
	def, err := insp.Definition(ctx)
	require.NoError(t, err)
	require.Len(t, def.Entities, 2)

	m, err := def.Build()
	require.NoError(t, err)
	emp := m.FindEntityType("Employee")
	require.NotNil(t, emp)
	require.Len(t, emp.ForeignKeys(), 1)
	self := emp.ForeignKeys()[0]
	require.True(t, self.IsSelfReferencing())
	require.False(t, self.IsRequired())
	require.Equal(t, metadata.SetNull, self.DeleteBehavior())
	require.Equal(t, "manager", self.DependentToPrincipal().Name())
	require.Equal(t, "employees", self.PrincipalToDependent().Name())

	badge := m.FindEntityType("Badge")
	require.NotNil(t, badge)
	require.Len(t, badge.ForeignKeys(), 1)
	holder := badge.ForeignKeys()[0]
	require.Equal(t, "badges_holder_fkey", holder.Name())
	require.Equal(t, []string{"name"}, metadata.PropertyNames(holder.PrincipalKeyProperties()))
	require.Equal(t, "employee", holder.DependentToPrincipal().Name())
	require.Equal(t, "badges", holder.PrincipalToDependent().Name())

	require.Contains(t, buf.String(), "skipping foreign key to columns that are not a key")
	require.Contains(t, buf.String(), "constraint=badges_title_ref_fkey")
}

func TestInspect_EntityNameCollisions(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	exec(t, drv,
		"CREATE TABLE main_users (id integer NOT NULL, PRIMARY KEY (id))",
		"CREATE TABLE user (id integer NOT NULL, PRIMARY KEY (id))",
		"CREATE TABLE users (id integer NOT NULL, PRIMARY KEY (id))",
	)
	insp, err := NewInspector(drv)
	require.NoError(t, err)
	def, err := insp.Definition(ctx)
	require.NoError(t, err)
	require.Len(t, def.Entities, 3)

	names, tables := make(map[string]bool), make(map[string]bool)
	for _, e := range def.Entities {
		names[e.Name] = true
		tables[e.Table] = true
	}
	require.Len(t, names, 3)
	require.True(t, names["User"])
	require.Equal(t, map[string]bool{"main_users": true, "user": true, "users": true}, tables)

	m, err := def.Build()
	require.NoError(t, err)
	require.Len(t, m.EntityTypes(), 3)
}

func TestUniqueName(t *testing.T) {
	taken := map[string]bool{"User": true, "MainUser": true}
	require.Equal(t, "Order", uniqueName(taken, "main", "Order"))
	require.Equal(t, "MainUser2", uniqueName(taken, "main", "User"))
	require.Equal(t, "AuditUser", uniqueName(taken, "audit", "User"))
}

func TestInspect_Cache(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	exec(t, drv,
		"CREATE TABLE users (id integer NOT NULL, PRIMARY KEY (id))",
		"CREATE TABLE pets (id integer NOT NULL, owner_id integer, PRIMARY KEY (id), "+
			"CONSTRAINT pets_owner_id_fkey FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE SET NULL)",
	)
	cache := relmeta.NewMemoryCache()
	insp, err := NewInspector(drv, WithCache(cache, "memory", 0))
	require.NoError(t, err)

	first, err := insp.Definition(ctx)
	require.NoError(t, err)
	require.Len(t, first.Entities, 2)
	require.Equal(t, 1, cache.Len())

	exec(t, drv, "DROP TABLE pets")
	cached, err := insp.Definition(ctx)
	require.NoError(t, err)
	require.Equal(t, first, cached)

	require.NoError(t, cache.Clear(ctx))
	fresh, err := insp.Definition(ctx)
	require.NoError(t, err)
	require.Len(t, fresh.Entities, 1)
}

func TestInspect_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewInspector(sql.OpenDB("oracle", db))
	require.ErrorIs(t, err, relmeta.ErrUnsupportedDialect)

	mock.ExpectQuery(".+").WillReturnError(errors.New("disk I/O error"))
	insp, err := NewInspector(sql.OpenDB(dialect.SQLite, db), WithSchemas("main"))
	require.NoError(t, err)
	_, err = insp.Inspect(context.Background())
	require.Error(t, err)
	require.True(t, relmeta.IsIntrospectError(err))
	var ierr *relmeta.IntrospectError
	require.ErrorAs(t, err, &ierr)
	require.Equal(t, dialect.SQLite, ierr.Dialect)
	require.Equal(t, "main", ierr.Schema)
}

func TestValidateModel(t *testing.T) {
	ctx := context.Background()
	drv := openSQLite(t)
	exec(t, drv,
		"CREATE TABLE users (id integer NOT NULL, email text NOT NULL, nickname text, PRIMARY KEY (id))",
		"CREATE TABLE pets (id integer NOT NULL, owner_id integer NOT NULL, PRIMARY KEY (id), "+
			"CONSTRAINT pets_owner_id_fkey FOREIGN KEY (owner_id) REFERENCES users (id) ON DELETE CASCADE)",
	)
	insp, err := NewInspector(drv)
	require.NoError(t, err)
	tables, err := insp.Tables(ctx)
	require.NoError(t, err)

	m := blogModel(t)
	result := ValidateModel(m, dialect.SQLite, tables)
	require.True(t, result.HasErrors())
	require.Len(t, result.Errors, 2)
	assert.Equal(t, "users: no unique index on (email)", result.Errors[0].Error())
	assert.Equal(t, "profiles: table does not exist", result.Errors[1].Error())

	require.Len(t, result.Warnings, 3)
	assert.Equal(t, "pets.owner_id: column is NOT NULL, property is nullable", result.Warnings[0].Error())
	assert.True(t, result.Warnings[0].Breaking)
	assert.Equal(t, "pets: foreign key pets_owner_id_fkey deletes with CASCADE, model expects SET NULL", result.Warnings[1].Error())
	assert.Equal(t, "pets: foreign key pets_owner_id_fkey has no index on (owner_id)", result.Warnings[2].Error())
	require.True(t, result.HasBreakingChanges())
	require.Contains(t, result.String(), "[BREAKING]")

	strict := ValidateModel(m, dialect.SQLite, tables, StrictNullability(), ReportExtraColumns())
	require.Len(t, strict.Errors, 3)
	require.Len(t, strict.Warnings, 3)
	assert.Equal(t, "users.nickname: column is not mapped to a property", strict.Warnings[0].Error())
}

func TestValidateModel_ForeignKeyMismatch(t *testing.T) {
	s, err := Export(blogModel(t), dialect.SQLite, "")
	require.NoError(t, err)
	pets, _ := s.Table("pets")
	users, _ := s.Table("users")
	// Point the constraint at the email key instead of the primary key.
	email, _ := users.Column("email")
	pets.ForeignKeys[0].RefColumns = []*schema.Column{email}

	result := ValidateModel(blogModel(t), dialect.SQLite, s.Tables)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "pets: foreign key pets_owner_id_fkey (owner_id) to users (id) does not exist", result.Errors[0].Error())
	require.Empty(t, result.Warnings)
}
