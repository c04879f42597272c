// relmeta loads relational models, resolves their foreign keys and compares
// them with live databases.
//
//	relmeta check schema.yaml
//	relmeta overlap schema.yaml --entity OrderLine
//	relmeta inspect --dialect postgres --dsn postgres://localhost/app
//	relmeta diff schema.yaml --dialect postgres --dsn postgres://localhost/app
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd := newRootCmd(os.Stdout, os.Stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "relmeta: %v\n", err)
		stop()
		os.Exit(1)
	}
}
