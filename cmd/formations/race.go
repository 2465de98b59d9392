package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	es "github.com/terraskye/formations"
	"github.com/terraskye/formations/formation"
	"golang.org/x/sync/errgroup"
)

// Race modes.
const (
	raceNaive  = "naive"
	raceOCC    = "occ"
	raceUpdate = "update"
)

type raceTask struct {
	name       string
	delay      time.Duration
	date       string
	instructor string
}

func newRaceCommand(a *app) *cobra.Command {
	var (
		mode   string
		id     string
		delayA time.Duration
		delayB time.Duration
	)
	cmd := &cobra.Command{
		Use:   "race",
		Short: "Reproduce two writers updating the same formation from a stale read",
		Long: `race creates a formation, loads it once for each of two tasks and lets both
schedule it after a delay. Task B is issued second but, by default, wakes up first.

Modes:
  naive   both appends succeed; the event with the later timestamp wins
  occ     the slower writer is rejected with a revision conflict
  update  each task loads, mutates and persists with retries on conflict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("delay-a") {
				delayA = 2 * a.cfg.RaceDelay
			}
			if !cmd.Flags().Changed("delay-b") {
				delayB = a.cfg.RaceDelay
			}
			if id == "" {
				id = "formation-" + uuid.NewString()
			}
			tasks := []raceTask{
				{name: "A", delay: delayA, date: "2021-05-01", instructor: "Alice"},
				{name: "B", delay: delayB, date: "2021-06-01", instructor: "Bob"},
			}
			return a.race(cmd, mode, id, tasks)
		},
	}
	cmd.Flags().StringVar(&mode, "mode", raceNaive, "naive, occ or update")
	cmd.Flags().StringVar(&id, "id", "", "formation id (default: random)")
	cmd.Flags().DurationVar(&delayA, "delay-a", 0, "delay of task A (default: 2x FORMATIONS_RACE_DELAY)")
	cmd.Flags().DurationVar(&delayB, "delay-b", 0, "delay of task B (default: FORMATIONS_RACE_DELAY)")
	return cmd
}

func (a *app) race(cmd *cobra.Command, mode, id string, tasks []raceTask) error {
	ctx := cmd.Context()

	var opts []es.RepositoryOption
	switch mode {
	case raceNaive:
	case raceOCC:
		opts = append(opts, es.WithOptimisticConcurrency())
	case raceUpdate:
		opts = append(opts, es.WithRetryStrategy(func() backoff.BackOff {
			return backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 5)
		}))
	default:
		return fmt.Errorf("unknown race mode %q", mode)
	}
	repo := a.repository(opts...)

	f, err := formation.Create(id, "Event Sourcing 101", 10)
	if err != nil {
		return err
	}
	if err := repo.Persist(ctx, f); err != nil {
		return err
	}

	// Both tasks read the same snapshot before either mutates it.
	snapshots := make([]*formation.Formation, len(tasks))
	for i := range tasks {
		if snapshots[i], err = repo.GetByID(ctx, id); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, task := range tasks {
		snapshot := snapshots[i]
		g.Go(func() error {
			log := a.log.WithFields(logrus.Fields{"task": task.name, "aggregateId": id})
			if err := sleep(gctx, task.delay); err != nil {
				return err
			}

			var err error
			if mode == raceUpdate {
				_, err = repo.Update(gctx, id, func(f *formation.Formation) error {
					f.ScheduleOn(task.date, task.instructor)
					return nil
				})
			} else {
				snapshot.ScheduleOn(task.date, task.instructor)
				err = repo.Persist(gctx, snapshot)
			}

			var conflict *es.StreamRevisionConflictError
			if errors.As(err, &conflict) {
				log.WithError(err).Warn("Update rejected")
				return nil
			}
			if err != nil {
				return fmt.Errorf("task %s: %w", task.name, err)
			}
			log.WithField("date", task.date).Info("Update persisted")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	final, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), final)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
