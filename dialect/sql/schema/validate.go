package schema

import (
	"fmt"
	"slices"
	"strings"

	"ariga.io/atlas/sql/schema"

	"github.com/syssam/relmeta/dialect"
	"github.com/syssam/relmeta/metadata"
)

// ValidationError is a difference between a model and a database table.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking is set when writes valid for the model fail on the table.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the differences found by ValidateModel.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges returns true if there are any breaking changes.
func (r *ValidationResult) HasBreakingChanges() bool {
	for _, e := range r.Errors {
		if e.Breaking {
			return true
		}
	}
	for _, w := range r.Warnings {
		if w.Breaking {
			return true
		}
	}
	return false
}

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	if len(r.Errors) > 0 {
		sb.WriteString("Errors:\n")
		for _, e := range r.Errors {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	if len(r.Warnings) > 0 {
		sb.WriteString("Warnings:\n")
		for _, w := range r.Warnings {
			sb.WriteString("  - ")
			sb.WriteString(w.Error())
			if w.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// ValidateOption configures ValidateModel.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	strictNull   bool
	extraColumns bool
}

// StrictNullability reports nullability drift as errors.
func StrictNullability() ValidateOption {
	return func(c *validateConfig) {
		c.strictNull = true
	}
}

// ReportExtraColumns reports database columns that no property maps to.
func ReportExtraColumns() ValidateOption {
	return func(c *validateConfig) {
		c.extraColumns = true
	}
}

// ValidateModel compares a model with inspected tables of dialect d.
// Missing tables, columns, keys and foreign keys are errors. Type,
// nullability and delete-behavior drift are warnings, as are foreign keys
// without an index over their minimal overlap columns.
//
//	tables, err := insp.Tables(ctx)
//	if err != nil {
//	    return err
//	}
//	if r := schema.ValidateModel(m, dialect.Postgres, tables); r.HasErrors() {
//	    return errors.New(r.String())
//	}
func ValidateModel(m *metadata.Model, d string, tables []*schema.Table, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	if n, err := dialect.Normalize(d); err == nil {
		d = n
	}
	byName := make(map[string]*schema.Table, len(tables))
	for _, t := range tables {
		byName[t.Name] = t
		if t.Schema != nil && t.Schema.Name != "" {
			byName[t.Schema.Name+"."+t.Name] = t
		}
	}
	result := &ValidationResult{}
	for _, et := range m.EntityTypes() {
		t, ok := byName[et.Table()]
		if !ok {
			result.Errors = append(result.Errors, &ValidationError{
				Table:    et.Table(),
				Message:  "table does not exist",
				Breaking: true,
			})
			continue
		}
		validateTable(et, t, d, cfg, result)
	}
	for _, fk := range m.ForeignKeys() {
		t, ok := byName[fk.DeclaringEntityType().Table()]
		if !ok {
			continue
		}
		validateForeignKey(fk, t, result)
	}
	return result
}

func validateTable(et *metadata.EntityType, t *schema.Table, d string, cfg *validateConfig, result *ValidationResult) {
	for _, p := range et.Properties() {
		c, ok := t.Column(p.Column())
		if !ok {
			result.Errors = append(result.Errors, &ValidationError{
				Table:    t.Name,
				Column:   p.Column(),
				Message:  "column does not exist",
				Breaking: true,
			})
			continue
		}
		if typ := propertyType(d, c.Type); typ != p.Type() && !(typ.Integer() && p.Type().Integer()) {
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   t.Name,
				Column:  c.Name,
				Message: fmt.Sprintf("column type %s does not match property type %s", typ, p.Type()),
			})
		}
		if null := c.Type != nil && c.Type.Null; null != p.IsNullable() && !p.IsPrimaryKey() {
			err := &ValidationError{Table: t.Name, Column: c.Name}
			if null {
				err.Message = "column is nullable, property is not"
			} else {
				err.Message = "column is NOT NULL, property is nullable"
				err.Breaking = true
			}
			if cfg.strictNull {
				result.Errors = append(result.Errors, err)
			} else {
				result.Warnings = append(result.Warnings, err)
			}
		}
	}
	if cfg.extraColumns {
		for _, c := range t.Columns {
			if !slices.Contains(metadata.PropertyColumns(et.Properties()), c.Name) {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table:   t.Name,
					Column:  c.Name,
					Message: "column is not mapped to a property",
				})
			}
		}
	}
	for _, k := range et.Keys() {
		cols := metadata.PropertyColumns(k.Properties())
		if k.IsPrimaryKey() {
			if t.PrimaryKey == nil || !slices.Equal(columnNames(t.PrimaryKey), cols) {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("primary key is not (%s)", strings.Join(cols, ", ")),
				})
			}
			continue
		}
		unique := slices.ContainsFunc(t.Indexes, func(idx *schema.Index) bool {
			return idx.Unique && sameColumns(columnNames(idx), cols)
		})
		if !unique {
			result.Errors = append(result.Errors, &ValidationError{
				Table:   t.Name,
				Message: fmt.Sprintf("no unique index on (%s)", strings.Join(cols, ", ")),
			})
		}
	}
}

func validateForeignKey(fk *metadata.ForeignKey, t *schema.Table, result *ValidationResult) {
	cols := metadata.PropertyColumns(fk.Properties())
	refs := metadata.PropertyColumns(fk.PrincipalKeyProperties())
	ref := fk.PrincipalEntityType().Table()
	if i := strings.LastIndexByte(ref, '.'); i >= 0 {
		ref = ref[i+1:]
	}
	idx := slices.IndexFunc(t.ForeignKeys, func(c *schema.ForeignKey) bool {
		return c.RefTable != nil && c.RefTable.Name == ref && samePairs(names(c.Columns), names(c.RefColumns), cols, refs)
	})
	if idx < 0 {
		result.Errors = append(result.Errors, &ValidationError{
			Table:   t.Name,
			Message: fmt.Sprintf("foreign key %s (%s) to %s (%s) does not exist", fk.Name(), strings.Join(cols, ", "), ref, strings.Join(refs, ", ")),
		})
		return
	}
	if want, got := referenceOption(fk.DeleteBehavior()), t.ForeignKeys[idx].OnDelete; !sameReferenceOption(want, got) {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Message: fmt.Sprintf("foreign key %s deletes with %s, model expects %s", fk.Name(), got, want),
		})
	}
	dep, _ := fk.MinimalOverlap()
	overlap := metadata.PropertyColumns(dep)
	indexed := func(idx *schema.Index) bool {
		have := columnNames(idx)
		return len(have) >= len(overlap) && slices.Equal(have[:len(overlap)], overlap)
	}
	if (t.PrimaryKey == nil || !indexed(t.PrimaryKey)) && !slices.ContainsFunc(t.Indexes, indexed) {
		result.Warnings = append(result.Warnings, &ValidationError{
			Table:   t.Name,
			Message: fmt.Sprintf("foreign key %s has no index on (%s)", fk.Name(), strings.Join(overlap, ", ")),
		})
	}
}

// samePairs reports if the column pairs (cols[i], refs[i]) are the same
// pairs as (wantCols[i], wantRefs[i]), in any order.
func samePairs(cols, refs, wantCols, wantRefs []string) bool {
	if len(cols) != len(wantCols) || len(refs) != len(cols) {
		return false
	}
	for i, c := range wantCols {
		j := slices.Index(cols, c)
		if j < 0 || refs[j] != wantRefs[i] {
			return false
		}
	}
	return true
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for _, c := range b {
		if !slices.Contains(a, c) {
			return false
		}
	}
	return true
}

// sameReferenceOption treats an empty option as NO ACTION, which is what
// some drivers report for constraints without an ON DELETE clause.
func sameReferenceOption(a, b schema.ReferenceOption) bool {
	norm := func(o schema.ReferenceOption) schema.ReferenceOption {
		if o == "" {
			return schema.NoAction
		}
		return schema.ReferenceOption(strings.ToUpper(string(o)))
	}
	return norm(a) == norm(b)
}
