package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/syssam/relmeta/dialect/sql/schema"
	"github.com/syssam/relmeta/load"
	"github.com/syssam/relmeta/metadata"
)

func (a *app) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Load a model definition and print its summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.check(args[0])
		},
	}
}

func (a *app) check(path string) error {
	m, err := a.loadModel(path)
	if err != nil {
		return err
	}
	fmt.Fprint(a.out, m.String())
	fmt.Fprintf(a.out, "ok: %d entity types, %d foreign keys\n", len(m.EntityTypes()), len(m.ForeignKeys()))
	return nil
}

func (a *app) overlapCmd() *cobra.Command {
	var entity string
	cmd := &cobra.Command{
		Use:   "overlap FILE",
		Short: "Print the minimal overlap columns of each foreign key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadModel(args[0])
			if err != nil {
				return err
			}
			fks := m.ForeignKeys()
			if entity != "" {
				et := m.FindEntityType(entity)
				if et == nil {
					return fmt.Errorf("entity type %q not found", entity)
				}
				fks = et.ForeignKeys()
			}
			for _, fk := range fks {
				dep, prin := fk.MinimalOverlap()
				fmt.Fprintf(a.out, "%s\n  %s(%s) -> %s(%s)\n  minimal: %s\n",
					fk.Name(),
					fk.DeclaringEntityType().Table(), strings.Join(metadata.PropertyColumns(fk.Properties()), ", "),
					fk.PrincipalEntityType().Table(), strings.Join(metadata.PropertyColumns(fk.PrincipalKeyProperties()), ", "),
					pairs(dep, prin),
				)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "only foreign keys declared on this entity type")
	return cmd
}

func pairs(dep, prin []*metadata.Property) string {
	s := make([]string, len(dep))
	for i := range dep {
		s[i] = dep[i].Column() + " -> " + prin[i].Column()
	}
	return strings.Join(s, ", ")
}

func (a *app) inspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Print the model definition of a live database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			drv, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd, drv)
			insp, err := a.inspector(drv)
			if err != nil {
				return err
			}
			def, err := insp.Definition(cmd.Context())
			if err != nil {
				return err
			}
			// Reject definitions the builder cannot resolve before printing them.
			if _, err := def.Build(); err != nil {
				return err
			}
			var b []byte
			if a.cfg.Format == "json" {
				b, err = load.MarshalJSON(def)
			} else {
				b, err = load.MarshalYAML(def)
			}
			if err != nil {
				return err
			}
			_, err = a.out.Write(b)
			return err
		},
	}
}

func (a *app) diffCmd() *cobra.Command {
	var strict, extra bool
	cmd := &cobra.Command{
		Use:   "diff FILE",
		Short: "Report differences between a model definition and a live database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadModel(args[0])
			if err != nil {
				return err
			}
			drv, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd, drv)
			insp, err := a.inspector(drv)
			if err != nil {
				return err
			}
			tables, err := insp.Tables(cmd.Context())
			if err != nil {
				return err
			}
			var opts []schema.ValidateOption
			if strict {
				opts = append(opts, schema.StrictNullability())
			}
			if extra {
				opts = append(opts, schema.ReportExtraColumns())
			}
			result := schema.ValidateModel(m, a.cfg.Dialect, tables, opts...)
			fmt.Fprintln(a.out, result.String())
			if result.HasErrors() {
				return errors.New("database does not match the model")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "report nullability drift as errors")
	cmd.Flags().BoolVar(&extra, "extra-columns", false, "report columns not mapped to a property")
	return cmd
}

func (a *app) applyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply FILE",
		Short: "Create the tables of a model definition that are missing in the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := a.loadModel(args[0])
			if err != nil {
				return err
			}
			drv, err := a.open(cmd)
			if err != nil {
				return err
			}
			defer a.close(cmd, drv)
			created, err := schema.Apply(cmd.Context(), drv, m, schema.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if len(created) == 0 {
				fmt.Fprintln(a.out, "no tables created")
				return nil
			}
			fmt.Fprintf(a.out, "created %s\n", strings.Join(created, ", "))
			return nil
		},
	}
}
