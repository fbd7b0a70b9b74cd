// Command pagestore inserts, reads and maintains records in a pagestore
// data directory.
//
// Usage:
//
//	pagestore [-config file] [-data dir] <command> [args]
//
// Commands:
//
//	insert <table> <json>         insert a record, assigning an id if it has none
//	get <table> <id>              print a record
//	update <table> <id> <json>    merge fields into a record
//	delete <table> <id>           delete a record
//	check <table>                 report table integrity
//	migrate <legacy-dir> <table>  copy a baseline table into the data directory
//	occupancy <legacy-dir> <table> print baseline page usage
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/davidvella/pagestore"
	"github.com/davidvella/pagestore/internal/config"
	"github.com/davidvella/pagestore/internal/logging"
	"github.com/davidvella/pagestore/legacy"
	"github.com/davidvella/pagestore/record"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	errUsage    = errors.New("usage: pagestore [-config file] [-data dir] <command> [args]")
	notFound    = map[string]string{"message": "Record not found"}
	deletedResp = map[string]string{"message": "Record deleted"}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("pagestore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "configuration file (.yaml, .toml or .ini)")
	dataDir := fs.String("data", "", "data directory, overrides the configuration")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	logger, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return 1
	}

	if err := dispatch(ctx, cfg, logger, fs.Args(), stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(stderr, err)
			return 2
		}
		logger.WithError(err).Error("command failed")
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	switch cmd {
	case "migrate", "occupancy":
		if len(args) != 2 {
			return errUsage
		}
		src, err := legacy.Open(ctx, args[0], args[1])
		if err != nil {
			return err
		}
		defer src.Close()

		if cmd == "occupancy" {
			usage, err := src.Occupancy(ctx)
			if err != nil {
				return err
			}
			return write(out, usage)
		}
		return withEngine(cfg, logger, func(e *pagestore.Engine) error {
			stats, err := legacy.Migrate(ctx, src, e, args[1], logger)
			if err != nil {
				return err
			}
			return write(out, stats)
		})
	}

	return withEngine(cfg, logger, func(e *pagestore.Engine) error {
		switch {
		case cmd == "insert" && len(args) == 2:
			return insert(ctx, e, args[0], args[1], out)
		case cmd == "get" && len(args) == 2:
			r, ok, err := e.Find(ctx, args[0], args[1])
			return respond(out, r, ok, err)
		case cmd == "update" && len(args) == 3:
			fields, err := record.Decode([]byte(args[2]))
			if err != nil {
				return err
			}
			r, ok, err := e.Update(ctx, args[0], args[1], fields)
			return respond(out, r, ok, err)
		case cmd == "delete" && len(args) == 2:
			ok, err := e.Delete(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			if !ok {
				return write(out, notFound)
			}
			return write(out, deletedResp)
		case cmd == "check" && len(args) == 1:
			report, err := e.Check(ctx, args[0])
			if err != nil {
				return err
			}
			return write(out, report)
		default:
			return errUsage
		}
	})
}

func withEngine(cfg *config.Config, logger *logrus.Logger, fn func(*pagestore.Engine) error) error {
	opts, err := cfg.Options(logger)
	if err != nil {
		return err
	}
	e, err := pagestore.Open(cfg.DataDir, opts...)
	if err != nil {
		return err
	}

	err = fn(e)
	if cerr := e.Close(); err == nil {
		err = cerr
	}
	return err
}

func insert(ctx context.Context, e *pagestore.Engine, table, raw string, out io.Writer) error {
	r, err := record.Decode([]byte(raw))
	if err != nil {
		return err
	}
	if _, ok := r[record.IDField]; !ok {
		id, err := e.NextID(ctx, table)
		if err != nil {
			return err
		}
		r[record.IDField] = id
	}

	if err := e.Insert(ctx, table, r); err != nil {
		return err
	}
	return write(out, r)
}

func respond(out io.Writer, r record.Record, ok bool, err error) error {
	if err != nil {
		return err
	}
	if !ok {
		return write(out, notFound)
	}
	return write(out, r)
}

func write(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	return enc.Encode(v)
}
