package schema

import (
	"fmt"
	"slices"
	"strings"

	"ariga.io/atlas/sql/schema"

	"github.com/syssam/relmeta"
	"github.com/syssam/relmeta/dialect"
	"github.com/syssam/relmeta/metadata"
)

// Export converts a model to an atlas schema for the given dialect. Every
// foreign key becomes a constraint over all of its columns, and gets a
// non-unique index over its minimal overlap columns unless an existing
// index already starts with them.
func Export(m *metadata.Model, d, schemaName string) (*schema.Schema, error) {
	d, err := dialect.Normalize(d)
	if err != nil {
		return nil, err
	}
	s := schema.New(schemaName)
	tables := make(map[*metadata.EntityType]*schema.Table, len(m.EntityTypes()))
	for _, et := range m.EntityTypes() {
		t, err := exportTable(et, d)
		if err != nil {
			return nil, err
		}
		tables[et] = t
		s.AddTables(t)
	}
	for _, fk := range m.ForeignKeys() {
		t, ref := tables[fk.DeclaringEntityType()], tables[fk.PrincipalEntityType()]
		c := schema.NewForeignKey(fk.Name()).
			AddColumns(columns(t, fk.Properties())...).
			SetRefTable(ref).
			AddRefColumns(columns(ref, fk.PrincipalKeyProperties())...).
			SetOnDelete(referenceOption(fk.DeleteBehavior()))
		t.AddForeignKeys(c)

		dep, _ := fk.MinimalOverlap()
		cols := columns(t, dep)
		if covered(t, cols) {
			continue
		}
		name := indexName(t.Name, metadata.PropertyColumns(dep), "idx")
		t.AddIndexes(schema.NewIndex(name).AddColumns(cols...))
	}
	return s, nil
}

func exportTable(et *metadata.EntityType, d string) (*schema.Table, error) {
	name := et.Table()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	t := schema.NewTable(name)
	for _, p := range et.Properties() {
		typ, err := columnType(d, p.Type())
		if err != nil {
			return nil, relmeta.NewModelError(et.Name(), p.Name(), "exporting column", err)
		}
		t.AddColumns(schema.NewColumn(p.Column()).SetType(typ).SetNull(p.IsNullable()))
	}
	for _, k := range et.Keys() {
		cols := columns(t, k.Properties())
		if k.IsPrimaryKey() {
			t.SetPrimaryKey(schema.NewPrimaryKey(cols...))
			continue
		}
		t.AddIndexes(schema.NewUniqueIndex(indexName(t.Name, metadata.PropertyColumns(k.Properties()), "key")).AddColumns(cols...))
	}
	return t, nil
}

func columns(t *schema.Table, props []*metadata.Property) []*schema.Column {
	cols := make([]*schema.Column, 0, len(props))
	for _, p := range props {
		c, _ := t.Column(p.Column())
		cols = append(cols, c)
	}
	return cols
}

// covered reports if the primary key or an index of t starts with cols.
func covered(t *schema.Table, cols []*schema.Column) bool {
	prefix := func(idx *schema.Index) bool {
		if idx == nil || len(idx.Parts) < len(cols) {
			return false
		}
		for i, c := range cols {
			if idx.Parts[i].C != c {
				return false
			}
		}
		return true
	}
	return prefix(t.PrimaryKey) || slices.ContainsFunc(t.Indexes, prefix)
}

func indexName(table string, cols []string, suffix string) string {
	return table + "_" + strings.Join(cols, "_") + "_" + suffix
}

// columnType returns the atlas type of t in dialect d. The types are
// picked to read back as the same property type on inspection, except for
// uint64 on postgres and uuid on mysql.
func columnType(d string, t metadata.Type) (schema.Type, error) {
	switch t {
	case metadata.TypeBool:
		return &schema.BoolType{T: "boolean"}, nil
	case metadata.TypeInt:
		switch d {
		case dialect.Postgres:
			return &schema.IntegerType{T: "integer"}, nil
		default:
			return &schema.IntegerType{T: "int"}, nil
		}
	case metadata.TypeInt64:
		if d == dialect.SQLite {
			return &schema.IntegerType{T: "integer"}, nil
		}
		return &schema.IntegerType{T: "bigint"}, nil
	case metadata.TypeUint64:
		switch d {
		case dialect.SQLite:
			return &schema.IntegerType{T: "uint64"}, nil
		case dialect.MySQL:
			return &schema.IntegerType{T: "bigint", Unsigned: true}, nil
		default:
			return &schema.IntegerType{T: "bigint"}, nil
		}
	case metadata.TypeFloat64:
		switch d {
		case dialect.Postgres:
			return &schema.FloatType{T: "double precision"}, nil
		case dialect.MySQL:
			return &schema.FloatType{T: "double"}, nil
		default:
			return &schema.FloatType{T: "real"}, nil
		}
	case metadata.TypeString:
		if d == dialect.SQLite {
			return &schema.StringType{T: "text"}, nil
		}
		return &schema.StringType{T: "varchar", Size: 255}, nil
	case metadata.TypeBytes:
		switch d {
		case dialect.Postgres:
			return &schema.BinaryType{T: "bytea"}, nil
		case dialect.MySQL:
			size := 255
			return &schema.BinaryType{T: "varbinary", Size: &size}, nil
		default:
			return &schema.BinaryType{T: "blob"}, nil
		}
	case metadata.TypeUUID:
		if d == dialect.MySQL {
			return &schema.StringType{T: "char", Size: 36}, nil
		}
		return &schema.UUIDType{T: "uuid"}, nil
	case metadata.TypeTime:
		if d == dialect.SQLite {
			return &schema.TimeType{T: "datetime"}, nil
		}
		return &schema.TimeType{T: "timestamp"}, nil
	case metadata.TypeOther:
		return &schema.JSONType{T: "json"}, nil
	default:
		return nil, fmt.Errorf("unsupported property type %s", t)
	}
}

func referenceOption(b metadata.DeleteBehavior) schema.ReferenceOption {
	switch b {
	case metadata.Cascade:
		return schema.Cascade
	case metadata.SetNull:
		return schema.SetNull
	case metadata.Restrict:
		return schema.Restrict
	default:
		return schema.NoAction
	}
}
