// Package main applies, reverts and lists the development schema migrations.
//
// Usage:
//
//	migrate [up|down|status]
//
// The LMS owns the production schema; these migrations mirror the tables the
// analytics read so local and integration databases can be created.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/learnsight/engagement-analytics/config"
	"github.com/learnsight/engagement-analytics/internal/infrastructure/persistence/postgres"
	"github.com/learnsight/engagement-analytics/pkg/logger"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [up|down|status]\n", os.Args[0])
	}
	flag.Parse()

	cmd := "up"
	if flag.NArg() > 0 {
		cmd = flag.Arg(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(logger.Options{
		Output: os.Stderr,
		Level:  logger.ParseLevel(cfg.Log.Level),
		Format: cfg.Log.Format,
	}).With(logger.Component("migrate"))
	defer func() { _ = log.Sync() }()

	pc := postgres.DefaultConfig()
	pc.URL = cfg.Database.URL
	pc.Host = cfg.Database.Host
	pc.Port = cfg.Database.Port
	pc.Database = cfg.Database.Name
	pc.User = cfg.Database.User
	pc.Password = cfg.Database.Password
	pc.SSLMode = cfg.Database.SSLMode
	pc.MaxConns = 2
	pc.MinConns = 1

	db, err := postgres.NewConnection(ctx, pc)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	migrator := postgres.NewMigrator(db)

	switch cmd {
	case "up":
		start := time.Now()
		if err := migrator.Migrate(ctx); err != nil {
			return err
		}
		log.Info("migrations applied", logger.Latency(time.Since(start)))
	case "down":
		if err := migrator.Rollback(ctx); err != nil {
			return err
		}
		log.Info("last migration reverted")
	case "status":
		ms, err := migrator.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
		for _, m := range ms {
			applied := "pending"
			if m.IsApplied {
				applied = m.AppliedAt.UTC().Format(time.RFC3339)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
		}
		return w.Flush()
	default:
		flag.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
	return nil
}
