package schema

import (
	"context"
	"fmt"

	"ariga.io/atlas/sql/schema"

	"github.com/syssam/relmeta"
	"github.com/syssam/relmeta/dialect/sql"
	"github.com/syssam/relmeta/metadata"
)

// Apply creates the tables of m that are missing in the schema attached to
// the driver connection, in a single transaction. Existing tables are left
// untouched; use ValidateModel to report their drift. It returns the names
// of the created tables. Only the WithLogger option applies.
func Apply(ctx context.Context, drv *sql.Driver, m *metadata.Model, opts ...InspectOption) (_ []string, err error) {
	insp, err := NewInspector(drv, opts...)
	if err != nil {
		return nil, err
	}
	logger := insp.logger
	tx, err := drv.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				err = fmt.Errorf("%w: rolling back: %v", err, rerr)
			}
		}
	}()
	atlas, err := openAtlas(insp.dialect, tx)
	if err != nil {
		return nil, err
	}
	current, err := atlas.InspectSchema(ctx, "", &schema.InspectOptions{Mode: schema.InspectTables})
	if err != nil {
		return nil, &relmeta.IntrospectError{Dialect: insp.dialect, Err: err}
	}
	desired, err := Export(m, insp.dialect, current.Name)
	if err != nil {
		return nil, err
	}
	var (
		changes []schema.Change
		created []string
	)
	for _, t := range desired.Tables {
		if _, ok := current.Table(t.Name); ok {
			logger.DebugContext(ctx, "table exists", "table", t.Name)
			continue
		}
		changes = append(changes, &schema.AddTable{T: t})
		created = append(created, t.Name)
	}
	if len(changes) == 0 {
		return nil, tx.Commit()
	}
	if err := atlas.ApplyChanges(ctx, changes); err != nil {
		return nil, fmt.Errorf("dialect/sql/schema: applying changes: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("dialect/sql/schema: commit: %w", err)
	}
	logger.InfoContext(ctx, "created tables", "dialect", insp.dialect, "tables", created)
	return created, nil
}
