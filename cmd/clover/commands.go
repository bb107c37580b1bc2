package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/scoutalgo/clover/pkg/database"
	"github.com/scoutalgo/clover/pkg/ingest"
	"github.com/scoutalgo/clover/pkg/models"
	"github.com/scoutalgo/clover/pkg/processor"
	"github.com/scoutalgo/clover/pkg/routes/health"
	"github.com/scoutalgo/clover/pkg/routes/reviews"
	"github.com/scoutalgo/clover/pkg/routes/runs"
	"github.com/scoutalgo/clover/pkg/server"
	"github.com/scoutalgo/clover/pkg/startup"
)

const shutdownTimeout = 15 * time.Second

// withDeps runs fn with loaded dependencies and a context cancelled on
// SIGINT or SIGTERM.
func withDeps(c *cli.Context, fn func(ctx context.Context, d *deps) error) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	d, err := loadDeps(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		d.close(closeCtx)
	}()

	return fn(ctx, d)
}

func writeJSON(path string, v any) error {
	out := os.Stdout
	if path != "" && path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ingestCommand() *cli.Command {
	return &cli.Command{
		Name:  "ingest",
		Usage: "Import a JSON export from one source",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "source",
				Aliases:  []string{"s"},
				Usage:    "Source name (glovo, wolt, arbuz, ryadom, ...)",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:     "file",
				Aliases:  []string{"f"},
				Usage:    "Path to a JSON array export, repeatable",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *deps) error {
				importer := ingest.NewImporter(d.store, ingest.DefaultRegistry(), d.logger)
				var all []*ingest.ImportStats
				for _, path := range c.StringSlice("file") {
					stats, err := importer.ImportFile(ctx, c.String("source"), path)
					if err != nil {
						return fmt.Errorf("import %s: %w", path, err)
					}
					all = append(all, stats)
				}
				return writeJSON("", all)
			})
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations",
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *deps) error {
				if d.db == nil {
					return errors.New("database.host is not configured")
				}
				result, err := database.NewMigrationService(d.logger, d.cfg.MigrationConfig()).Migrate(ctx, d.db, d.cfg.Database.Name)
				if err != nil {
					return err
				}
				return writeJSON("", result)
			})
		},
	}
}

func matchCommand() *cli.Command {
	return &cli.Command{
		Name:  "match",
		Usage: "Run one matching pass over pending listings",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run-id", Usage: "Run identifier, generated when empty"},
			&cli.StringSliceFlag{Name: "source", Usage: "Only use listings from these sources as queries"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum number of query listings, 0 for all"},
			&cli.BoolFlag{Name: "dry-run", Usage: "Record decisions without merging"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the run report to this file"},
			&cli.DurationFlag{Name: "progress", Value: 10 * time.Second, Usage: "Progress log interval"},
		},
		Action: func(c *cli.Context) error {
			if c.Int("limit") < 0 {
				return errors.New("--limit must not be negative")
			}
			return withDeps(c, func(ctx context.Context, d *deps) error {
				matcher, _, err := d.processors(d.guard())
				if err != nil {
					return err
				}

				var last atomic.Int64
				interval := c.Duration("progress")
				report, err := matcher.Run(ctx, processor.RunOptions{
					RunID:        c.String("run-id"),
					QuerySources: c.StringSlice("source"),
					Limit:        c.Int("limit"),
					DryRun:       c.Bool("dry-run"),
					Observer: func(p models.Progress) {
						now := time.Now().UnixNano()
						prev := last.Load()
						if now-prev < int64(interval) || !last.CompareAndSwap(prev, now) {
							return
						}
						d.logger.WithFields(map[string]any{
							"run_id":    p.RunID,
							"processed": p.Processed,
							"total":     p.Total,
							"matched":   p.Matched,
							"errored":   p.Errored,
						}).Info("Matching progress")
					},
				})
				if err != nil {
					return err
				}
				return writeJSON(c.String("output"), report)
			})
		},
	}
}

func reviewCommand() *cli.Command {
	return &cli.Command{
		Name:  "review",
		Usage: "Audit the matches committed by a run",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run-id", Usage: "Only review decisions from this run"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write the review report to this file"},
		},
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *deps) error {
				_, reviewer, err := d.processors(d.guard())
				if err != nil {
					return err
				}
				report, err := reviewer.Run(ctx, c.String("run-id"))
				if err != nil {
					return err
				}
				return writeJSON(c.String("output"), report)
			})
		},
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the job-control HTTP API",
		Action: func(c *cli.Context) error {
			return withDeps(c, func(ctx context.Context, d *deps) error {
				guard := d.guard()
				matcher, reviewer, err := d.processors(guard)
				if err != nil {
					return err
				}

				checker := health.NewChecker(version)
				boot := startup.NewStartup(d.logger, d.cfg.StartupMaxAttempts)

				dbDep := startup.FuncDependency{Name: "database"}
				if d.db != nil {
					dbDep.StartFunc = d.db.PingContext
					checker.AddCheck("database", d.db.PingContext)
				}
				boot.AddDependency(dbDep)

				if d.redis != nil {
					ping := func(ctx context.Context) error { return d.redis.Ping(ctx).Err() }
					boot.AddDependency(startup.FuncDependency{Name: "redis", StartFunc: ping})
					checker.AddCheck("redis", ping)
				}

				srv := server.New(d.cfg.ServerConfig(), d.logger, checker,
					runs.NewHandler(ctx, matcher, d.logger), reviews.NewHandler(reviewer))
				boot.AddDependency(srv)

				if err := boot.Start(ctx); err != nil {
					return err
				}

				select {
				case <-ctx.Done():
					d.logger.Info("Shutting down")
				case err = <-srv.Errors():
					d.logger.WithError(err).Error("HTTP server failed")
				}

				stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return errors.Join(err, boot.Stop(stopCtx))
			})
		},
	}
}
