package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	es "github.com/terraskye/formations"
	"github.com/terraskye/formations/eventstore/file"
	"github.com/terraskye/formations/eventstore/memory"
	"github.com/terraskye/formations/eventstore/sqlite"
	"github.com/terraskye/formations/formation"
	"github.com/terraskye/formations/internal/config"
	"github.com/terraskye/formations/logging"
	esotel "github.com/terraskye/formations/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// app holds what every subcommand needs once the store is open.
type app struct {
	cfg   config.Config
	trace bool

	log   *logrus.Entry
	store es.EventStore
	tp    *sdktrace.TracerProvider
}

// execute runs the CLI with args. The store is closed whatever the outcome of
// the command.
func execute(ctx context.Context, args []string, stdout io.Writer) error {
	a := &app{}
	root := newRootCommand(a)
	root.SetArgs(args)
	root.SetOut(stdout)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, a.close(context.WithoutCancel(ctx)))
}

// flagEnv maps the persistent flags to the variables they override.
var flagEnv = map[string]string{
	"store":      "FORMATIONS_STORE",
	"path":       "FORMATIONS_PATH",
	"log-level":  "FORMATIONS_LOG_LEVEL",
	"log-format": "FORMATIONS_LOG_FORMAT",
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "formations",
		Short:         "Event-sourced formation store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			overrides := make(map[string]string)
			for name, key := range flagEnv {
				if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
					overrides[key] = f.Value.String()
				}
			}
			cfg, err := config.Load(overrides)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return a.open(cmd.Context())
		},
	}

	flags := root.PersistentFlags()
	flags.String("store", config.StoreSQLite, "event store backend: memory, file or sqlite (env FORMATIONS_STORE)")
	flags.String("path", "formations.db", "sqlite database file or file store directory (env FORMATIONS_PATH)")
	flags.String("log-level", "info", "log level (env FORMATIONS_LOG_LEVEL)")
	flags.String("log-format", "text", "log format: text or json (env FORMATIONS_LOG_FORMAT)")
	flags.BoolVar(&a.trace, "trace", false, "print event store spans to stderr")

	root.AddCommand(
		newCreateCommand(a),
		newScheduleCommand(a),
		newShowCommand(a),
		newLogCommand(a),
		newRaceCommand(a),
	)
	return root
}

func (a *app) open(ctx context.Context) error {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(a.cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logger.SetLevel(level)
	if a.cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	a.log = logger.WithField("store", a.cfg.Store)

	var store es.EventStore
	switch a.cfg.Store {
	case config.StoreMemory:
		store = memory.NewMemoryStore(formation.FromRecord)
	case config.StoreFile:
		store, err = file.NewFileStore(a.cfg.Path, formation.FromRecord)
	case config.StoreSQLite:
		store, err = sqlite.Open(a.cfg.Path, formation.FromRecord)
	}
	if err != nil {
		return fmt.Errorf("open %s store: %w", a.cfg.Store, err)
	}

	var opts []esotel.Option
	if a.trace {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(os.Stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			_ = store.Close()
			return fmt.Errorf("trace exporter: %w", err)
		}
		a.tp = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		opts = append(opts, esotel.WithTracerProvider(a.tp))
	}

	a.store = logging.WithEventStoreLogging(a.log, esotel.WithEventStoreTelemetry(store, opts...))
	a.log.WithField("path", a.cfg.Path).Debug("Store opened")
	return nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	if a.tp != nil {
		errs = append(errs, a.tp.Shutdown(ctx))
		a.tp = nil
	}
	return errors.Join(errs...)
}

func (a *app) repository(opts ...es.RepositoryOption) *formation.Repository {
	return formation.NewRepository(a.store, opts...)
}
