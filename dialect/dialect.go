// Package dialect names the database dialects relmeta can inspect and
// export to.
package dialect

import (
	"fmt"
	"strings"

	"github.com/syssam/relmeta"
)

// Dialect names.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
	SQLite   = "sqlite"
)

var aliases = map[string]string{
	"postgres":   Postgres,
	"postgresql": Postgres,
	"pg":         Postgres,
	"pgx":        Postgres,
	"mysql":      MySQL,
	"mariadb":    MySQL,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
}

// Normalize returns the dialect name for s, accepting common aliases such
// as "postgresql" or "sqlite3".
func Normalize(s string) (string, error) {
	if d, ok := aliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return d, nil
	}
	return "", fmt.Errorf("%w: %q", relmeta.ErrUnsupportedDialect, s)
}
