package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
	"github.com/wbip/wbip/pkg/config"
	"github.com/wbip/wbip/pkg/database"
	"github.com/wbip/wbip/pkg/migrations"
)

func main() {
	log := logger.New()

	// Upstream credentials are not needed to manage the schema.
	cfg, err := config.NewForMigrations()
	if err != nil {
		log.Err(err).Fatal("config error")
	}

	var db *bun.DB
	openDB := func(*cli.Context) error {
		db, err = database.New(cfg)
		return err
	}

	app := &cli.App{
		Name:        "migrations",
		Usage:       "manage the wbip database schema",
		Description: "Applies, rolls back and reports on the migrations for " + cfg.DatabaseFilePath,
		Before:      openDB,
		After: func(*cli.Context) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
		Commands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: func(c *cli.Context) error {
					migrator := migrate.NewMigrator(db, migrations.Migrations)
					return migrator.Init(c.Context)
				},
			},
			{
				Name:  "migrate",
				Usage: "apply all pending migrations",
				Action: func(c *cli.Context) error {
					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}

					if group.IsZero() {
						fmt.Printf("%s is up to date\n", cfg.DatabaseFilePath)
						return nil
					}

					fmt.Printf("Applied group %d:\n", group.ID)
					for _, m := range group.Migrations {
						fmt.Printf("  %s\n", m.String())
					}
					return nil
				},
			},
			{
				Name:  "rollback",
				Usage: "roll back the last migration group",
				Action: func(c *cli.Context) error {
					group, err := migrations.RollBack(c.Context, db)
					if err != nil {
						return err
					}

					if group.IsZero() {
						fmt.Printf("There are no groups to roll back\n")
						return nil
					}

					fmt.Printf("Rolled back group %d:\n", group.ID)
					for _, m := range group.Migrations {
						fmt.Printf("  %s\n", m.String())
					}
					return nil
				},
			},
			{
				Name:      "create",
				Usage:     "create Go migration",
				ArgsUsage: "<words describing the change>",
				Action: func(c *cli.Context) error {
					if c.NArg() == 0 {
						return cli.Exit("a migration name is required", 1)
					}
					migrator := migrate.NewMigrator(db, migrations.Migrations)

					name := strings.Join(c.Args().Slice(), "_")
					mf, err := migrator.CreateGoMigration(
						c.Context,
						name,
						migrate.WithGoTemplate(migrationTemplate),
					)
					if err != nil {
						return err
					}
					fmt.Printf("Created migration %s (%s)\n", mf.Name, mf.Path)

					return nil
				},
			},
			{
				Name:  "status",
				Usage: "list every migration and the group it was applied in",
				Action: func(c *cli.Context) error {
					return printStatus(c.Context, db)
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("app run error")
	}
}

func printStatus(ctx context.Context, db *bun.DB) error {
	statuses, err := migrations.Statuses(ctx, db)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MIGRATION\tDESCRIPTION\tGROUP\tAPPLIED AT")
	pending := 0
	for _, s := range statuses {
		if !s.Applied() {
			pending++
			fmt.Fprintf(w, "%s\t%s\t-\tpending\n", s.Name, s.Comment)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", s.Name, s.Comment, s.GroupID, s.MigratedAt.Format(time.RFC3339))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("%d of %d migrations pending\n", pending, len(statuses))
	return nil
}

const migrationTemplate = `package %s

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("")
		return errors.WithStack(err)
	}

	down := func(_ context.Context, db *bun.DB) error {
		_, err := db.Exec("")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
`
