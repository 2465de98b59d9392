package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	es "github.com/terraskye/formations"
	"github.com/terraskye/formations/formation"
	"github.com/terraskye/formations/logging"
)

func newCreateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "create ID NAME HOURS",
		Short: "Create a formation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			hours, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("hours: %w", err)
			}
			f, err := formation.Create(args[0], args[1], hours)
			if err != nil {
				return err
			}

			// Optimistic concurrency turns a duplicate id into a conflict.
			repo := a.repository(es.WithOptimisticConcurrency())
			if err := repo.Persist(cmd.Context(), f); err != nil {
				return err
			}
			a.log.WithFields(logging.AggregateFields(f)).Info("Formation created")
			fmt.Fprintln(cmd.OutOrStdout(), f)
			return nil
		},
	}
}

func newScheduleCommand(a *app) *cobra.Command {
	var occ bool
	cmd := &cobra.Command{
		Use:   "schedule ID DATE INSTRUCTOR",
		Short: "Schedule a formation on a date with an instructor",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var opts []es.RepositoryOption
			if occ {
				opts = append(opts, es.WithOptimisticConcurrency())
			}
			repo := a.repository(opts...)

			f, err := repo.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f.ScheduleOn(args[1], args[2])
			if err := repo.Persist(cmd.Context(), f); err != nil {
				return err
			}
			a.log.WithFields(logging.AggregateFields(f)).Info("Formation scheduled")
			fmt.Fprintln(cmd.OutOrStdout(), f)
			return nil
		},
	}
	cmd.Flags().BoolVar(&occ, "occ", false, "reject the update if the formation changed since it was loaded")
	return cmd
}

func newShowCommand(a *app) *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show the current state of a formation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo := a.repository()
			if raw {
				state, err := repo.ProjectionOf(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, state)
			}
			f, err := repo.GetByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), f)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "print the folded projection state as JSON")
	return cmd
}

func newLogCommand(a *app) *cobra.Command {
	var aggregateID string
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Print the event log in append order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := a.store.ListAll(cmd.Context())
			if err != nil {
				return err
			}
			if aggregateID != "" {
				events = es.FilterByAggregate(events, aggregateID)
			}
			for _, ev := range events {
				if err := writeJSON(cmd, ev.ToRecord()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&aggregateID, "id", "", "only print events of this formation")
	return cmd
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
