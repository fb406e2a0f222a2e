package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/book-lending-go/lending"
)

func newRootCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "lendingctl",
		Short:        "Manage book stock and loans of a lending deployment",
		SilenceUsage: true,
	}

	cmd.SetOut(a.out)
	cmd.SetErr(a.errOut)

	cmd.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "YAML config file (optional)")
	cmd.PersistentFlags().StringVar(&a.adapter, "adapter", "", "store adapter: pgx.pool, sql.db, sqlx.db or memory (overrides config)")
	cmd.PersistentFlags().BoolVar(&a.withTelemetry, "telemetry", false, "record OpenTelemetry metrics and spans, print a metrics summary to stderr")

	cmd.AddCommand(
		migrateCmd(a),
		addBookCmd(a),
		bookCmd(a),
		borrowCmd(a),
		returnCmd(a),
		renewCmd(a),
		deleteCmd(a),
		loansCmd(a),
		seedHistoryCmd(a),
	)

	return cmd
}

// withBackend opens the app for the duration of run and always closes it afterwards.
func (a *app) withBackend(run func(cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		if err = a.open(cmd); err != nil {
			return err
		}

		defer func() {
			err = errors.Join(err, a.close(cmd.Context()))
		}()

		return run(cmd)
	}
}

func operationFailed(operation string, err error) error {
	return fmt.Errorf("%s failed (%s): %w", operation, lending.ErrorKind(err), err)
}
