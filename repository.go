package eventsourcing

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Rehydrator builds an aggregate directly from its projection state, without
// replaying business logic. The result must have no pending events.
type Rehydrator[T Aggregate] func(state Projection) (T, error)

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryOptions)

type repositoryOptions struct {
	// optimistic makes Persist append with the version observed at load time.
	optimistic bool

	// retry creates the strategy Update uses to retry on version conflicts.
	retry func() backoff.BackOff
}

// WithOptimisticConcurrency makes Persist reject an append when other events
// were stored for the aggregate after it was loaded. The rejection is a
// *StreamRevisionConflictError.
func WithOptimisticConcurrency() RepositoryOption {
	return func(o *repositoryOptions) { o.optimistic = true }
}

// WithRetryStrategy sets the factory for the strategy Update uses to retry
// after a version conflict. A fresh strategy is created for every Update call.
//
// Usage:
//
//	repo := NewRepository(store, rehydrate, WithRetryStrategy(func() backoff.BackOff {
//	    return backoff.WithMaxRetries(backoff.NewConstantBackOff(10*time.Millisecond), 3)
//	}))
func WithRetryStrategy(strategy func() backoff.BackOff) RepositoryOption {
	return func(o *repositoryOptions) { o.retry = strategy }
}

// Repository reconstructs aggregates from an EventStore and persists their
// pending events.
type Repository[T Aggregate] struct {
	store     EventStore
	rehydrate Rehydrator[T]
	opts      repositoryOptions
}

// NewRepository returns a Repository reading and writing through store.
func NewRepository[T Aggregate](store EventStore, rehydrate Rehydrator[T], opts ...RepositoryOption) *Repository[T] {
	cfg := repositoryOptions{
		retry: func() backoff.BackOff { return &backoff.StopBackOff{} },
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &Repository[T]{
		store:     store,
		rehydrate: rehydrate,
		opts:      cfg,
	}
}

// GetByID loads every event of the aggregate, orders them by creation time,
// folds their payloads and rehydrates the aggregate from the result.
//
// The returned aggregate's version is the number of events it was derived
// from. If no event exists for id, GetByID returns ErrAggregateNotFound.
func (r *Repository[T]) GetByID(ctx context.Context, id string) (T, error) {
	var zero T

	state, count, err := r.project(ctx, id)
	if err != nil {
		return zero, err
	}

	agg, err := r.rehydrate(state)
	if err != nil {
		return zero, fmt.Errorf("get aggregate %q: rehydrate: %w", id, err)
	}
	agg.SetAggregateVersion(count)

	AggregatesLoaded.Add(ctx, 1)
	return agg, nil
}

// ProjectionOf returns the folded state of the aggregate without rehydrating it.
func (r *Repository[T]) ProjectionOf(ctx context.Context, id string) (Projection, error) {
	state, _, err := r.project(ctx, id)
	return state, err
}

func (r *Repository[T]) project(ctx context.Context, id string) (Projection, uint64, error) {
	all, err := r.store.ListAll(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("get aggregate %q: list events: %w", id, err)
	}

	events := FilterByAggregate(all, id)
	if len(events) == 0 {
		return nil, 0, fmt.Errorf("get aggregate %q: %w", id, ErrAggregateNotFound)
	}

	EventsFolded.Record(ctx, int64(len(events)))
	return Fold(events), uint64(len(events)), nil
}

// Persist appends the pending events of agg to the store in recording order.
//
// On success the pending list is cleared and the version advanced, so calling
// Persist again without new mutations appends nothing. Without
// WithOptimisticConcurrency, appends are unconditional and the last event by
// creation time wins when the aggregate is read back.
func (r *Repository[T]) Persist(ctx context.Context, agg T) error {
	var expected StreamState = Any{}
	if r.opts.optimistic {
		expected = Revision(agg.AggregateVersion())
	}
	return r.persist(ctx, agg, expected)
}

func (r *Repository[T]) persist(ctx context.Context, agg T, expected StreamState) error {
	pending := agg.UncommittedEvents()
	if len(pending) == 0 {
		return nil
	}

	id := agg.AggregateID()
	result, err := r.store.AppendStream(ctx, id, pending, expected)
	if err != nil {
		var conflict *StreamRevisionConflictError
		if errors.As(err, &conflict) {
			ConcurrencyConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("aggregate.id", id)))
		}
		return fmt.Errorf("persist aggregate %q: %w", id, err)
	}

	agg.SetAggregateVersion(result.NextExpectedVersion)
	agg.ClearUncommittedEvents()
	return nil
}

// Update loads the aggregate, applies fn and persists the resulting events
// with optimistic concurrency. When another writer appended events in the
// meantime, the whole cycle is retried according to the retry strategy.
//
// Errors from loading, from fn or from the store other than a version
// conflict are not retried.
func (r *Repository[T]) Update(ctx context.Context, id string, fn func(agg T) error) (T, error) {
	strategy := backoff.WithContext(r.opts.retry(), ctx)

	return backoff.RetryWithData(func() (T, error) {
		var zero T

		agg, err := r.GetByID(ctx, id)
		if err != nil {
			return zero, backoff.Permanent(err)
		}

		if err := fn(agg); err != nil {
			return zero, backoff.Permanent(fmt.Errorf("update aggregate %q: %w", id, err))
		}

		if err := r.persist(ctx, agg, Revision(agg.AggregateVersion())); err != nil {
			var conflict *StreamRevisionConflictError
			if errors.As(err, &conflict) {
				return zero, err
			}
			return zero, backoff.Permanent(err)
		}
		return agg, nil
	}, strategy)
}
