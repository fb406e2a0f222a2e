package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/book-lending-go/example/shared/config"
	"github.com/AntonStoeckl/book-lending-go/lending"
	"github.com/AntonStoeckl/book-lending-go/lending/memengine"
	"github.com/AntonStoeckl/book-lending-go/lending/postgresengine"
	"github.com/AntonStoeckl/book-lending-go/lending/service"
)

// backend is what the CLI needs from a store: both halves of the lending persistence plus the catalogue.
type backend interface {
	lending.InventoryStore
	lending.LoanLedger
	AddBook(ctx context.Context, book lending.Book) error
}

type schemaCreator interface {
	CreateSchema(ctx context.Context) error
}

// app holds everything a subcommand needs. It is opened once per command execution.
//
// The memory store outlives single executions, so several commands on the same app
// see each other's state. That is what the tests rely on.
type app struct {
	out    io.Writer
	errOut io.Writer

	configFile    string
	adapter       string
	withTelemetry bool

	cfg       config.Config
	logger    *slog.Logger
	backend   backend
	providers *telemetry
	closeFn   func()

	memory *memengine.Store
}

func newApp(out io.Writer, errOut io.Writer) *app {
	return &app{out: out, errOut: errOut}
}

// open loads the configuration and connects the backend.
func (a *app) open(cmd *cobra.Command) error {
	v, err := config.NewViper(a.configFile)
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("adapter") {
		v.Set("adapter", a.adapter)
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.logger = slog.New(cfg.Log.NewLogHandler(a.errOut))
	a.closeFn = func() {}

	if a.withTelemetry {
		a.providers = newTelemetry(a.logger.Handler())
	}

	if cfg.Adapter == config.AdapterMemory {
		return a.openMemory()
	}

	return a.openPostgres(cmd.Context())
}

func (a *app) openMemory() error {
	if a.memory == nil {
		store, err := memengine.New(memengine.WithLogger(a.logger))
		if err != nil {
			return err
		}

		a.memory = store
	}

	a.backend = a.memory

	return nil
}

func (a *app) openPostgres(ctx context.Context) error {
	options := []postgresengine.Option{postgresengine.WithLogger(a.logger)}

	if a.providers != nil {
		options = append(options,
			postgresengine.WithContextualLogger(a.providers.logger),
			postgresengine.WithMetrics(a.providers.metrics),
			postgresengine.WithTracing(a.providers.tracing),
		)
	}

	engine, closeFn, err := a.cfg.NewPostgresEngine(ctx, options...)
	if err != nil {
		return err
	}

	a.backend = engine
	a.closeFn = closeFn

	return nil
}

// close releases the backend and reports collected metrics when telemetry is enabled.
func (a *app) close(ctx context.Context) error {
	var err error

	if a.providers != nil {
		err = a.providers.report(ctx, a.errOut)
		err = errors.Join(err, a.providers.shutdown(ctx))
		a.providers = nil
	}

	if a.closeFn != nil {
		a.closeFn()
		a.closeFn = nil
	}

	return err
}

// newService creates the lending service on the opened backend.
func (a *app) newService(options ...service.Option) (*service.LendingService, error) {
	all := append(a.cfg.ServiceOptions(), service.WithLogger(a.logger))

	if a.providers != nil {
		all = append(all,
			service.WithContextualLogger(a.providers.logger),
			service.WithMetrics(a.providers.metrics),
			service.WithTracing(a.providers.tracing),
		)
	}

	lendingService, err := service.New(a.backend, a.backend, append(all, options...)...)
	if err != nil {
		return nil, fmt.Errorf("creating lending service: %w", err)
	}

	return lendingService, nil
}

func (a *app) createSchema(ctx context.Context) (bool, error) {
	creator, ok := a.backend.(schemaCreator)
	if !ok {
		return false, nil
	}

	if err := creator.CreateSchema(ctx); err != nil {
		return false, err
	}

	return true, nil
}
