package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-checkout/pkg/config"
	"github.com/angelmondragon/storefront-checkout/pkg/db/models"
	"github.com/angelmondragon/storefront-checkout/pkg/logger"
	"github.com/angelmondragon/storefront-checkout/pkg/metrics"
	"github.com/angelmondragon/storefront-checkout/pkg/outbox/registry"
)

const (
	publishTimeout = 15 * time.Second
	maxBackoff     = 10 * time.Second
	backoffJitter  = 250 * time.Millisecond

	fallbackBatchSize   = 50
	fallbackIdle        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
)

type relayStore interface {
	Claim(ctx context.Context, tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, tx *gorm.DB, id uuid.UUID, at time.Time) error
	RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error) error
	Park(ctx context.Context, tx *gorm.DB, id uuid.UUID, cause error, ceiling int) error
	Backlog(ctx context.Context, maxAttempts int) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventResolver interface {
	Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher publishes one message and waits for the server ack.
type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (serverID string, err error)
}

// delivery is what happened to one outbox row in a drain pass.
type delivery int

const (
	delivered delivery = iota
	retryLater
	parked
)

func (d delivery) String() string {
	switch d {
	case delivered:
		return "published"
	case retryLater:
		return "retry"
	default:
		return "parked"
	}
}

type RelayParams struct {
	Outbox   config.OutboxConfig
	Store    relayStore
	Tx       txRunner
	Registry eventResolver
	// Topics returns the publisher for a topic name. Errors park the row.
	Topics  func(topic string) (topicPublisher, error)
	Metrics *metrics.CheckoutMetrics
	Logger  *logger.Logger
}

// Relay drains order_paid and payment_failed rows from outbox_events into the
// order events topic. Rows are claimed with SKIP LOCKED, so several relays can
// share one table; a row is only stamped delivered after the topic acks it.
type Relay struct {
	store    relayStore
	tx       txRunner
	registry eventResolver
	topics   func(topic string) (topicPublisher, error)
	metrics  *metrics.CheckoutMetrics
	logg     *logger.Logger
	now      func() time.Time

	batchSize   int
	maxAttempts int
	idle        time.Duration
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Store == nil:
		return nil, errors.New("outbox store is required")
	case params.Tx == nil:
		return nil, errors.New("transaction runner is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Topics == nil:
		return nil, errors.New("topic lookup is required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}

	r := &Relay{
		store:       params.Store,
		tx:          params.Tx,
		registry:    params.Registry,
		topics:      params.Topics,
		metrics:     params.Metrics,
		logg:        logg,
		now:         time.Now,
		batchSize:   params.Outbox.BatchSize,
		maxAttempts: params.Outbox.MaxAttempts,
		idle:        time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond,
	}
	if r.batchSize <= 0 {
		r.batchSize = fallbackBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = fallbackMaxAttempts
	}
	if r.idle <= 0 {
		r.idle = fallbackIdle
	}
	return r, nil
}

// Run drains until ctx is done. Full batches are followed immediately by the
// next one, an empty pass waits the poll interval, and a failed pass backs off
// exponentially up to maxBackoff.
func (r *Relay) Run(ctx context.Context) error {
	backoff := r.newBackoff()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		handled, err := r.drain(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox.drain_failed", err)
			wait, _ = backoff.Next()
		case handled == 0:
			backoff = r.newBackoff()
			r.reportBacklog(ctx)
			wait = r.idle
		default:
			backoff = r.newBackoff()
		}

		if err := pause(ctx, wait); err != nil {
			return err
		}
	}
}

func (r *Relay) newBackoff() retry.Backoff {
	return retry.WithJitter(backoffJitter, retry.WithCappedDuration(maxBackoff, retry.NewExponential(r.idle)))
}

// drain handles one claimed batch and reports how many rows it saw.
func (r *Relay) drain(ctx context.Context) (int, error) {
	var handled int
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := r.store.Claim(ctx, tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		handled = len(rows)
		for _, row := range rows {
			outcome, cause := r.deliver(ctx, row)
			if err := r.settle(ctx, tx, row, outcome, cause); err != nil {
				return err
			}
		}
		return nil
	})
	return handled, err
}

func (r *Relay) deliver(ctx context.Context, row models.OutboxEvent) (delivery, error) {
	resolved, err := r.registry.Resolve(row)
	if err != nil {
		if registry.IsPoison(err) {
			return parked, err
		}
		return retryLater, err
	}
	topic, err := r.topics(resolved.Topic)
	if err != nil {
		return parked, fmt.Errorf("topic %s: %w", resolved.Topic, err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err = topic.Publish(publishCtx, &gcppubsub.Message{
		Data:        row.Payload,
		Attributes:  resolved.Attributes(),
		OrderingKey: row.AggregateID.String(),
	})
	if err == nil {
		return delivered, nil
	}
	if row.AttemptCount+1 >= r.maxAttempts {
		return parked, fmt.Errorf("gave up after %d attempts: %w", row.AttemptCount+1, err)
	}
	return retryLater, err
}

func (r *Relay) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, outcome delivery, cause error) error {
	r.metrics.IncOutboxPublish(row.EventType.String(), outcome.String())
	fields := map[string]any{
		"outbox_id":     row.ID.String(),
		"event_type":    row.EventType.String(),
		"aggregate_id":  row.AggregateID.String(),
		"attempt_count": row.AttemptCount,
		"outcome":       outcome.String(),
	}
	if cause != nil {
		fields["error"] = cause.Error()
	}
	logCtx := r.logg.WithFields(ctx, fields)

	var err error
	switch outcome {
	case delivered:
		err = r.store.MarkDelivered(ctx, tx, row.ID, r.now())
		r.logg.Info(logCtx, "outbox.event_published")
	case retryLater:
		err = r.store.RecordFailure(ctx, tx, row.ID, cause)
		r.logg.Warn(logCtx, "outbox.publish_failed")
	case parked:
		err = r.store.Park(ctx, tx, row.ID, cause, r.maxAttempts)
		r.logg.Warn(logCtx, "outbox.event_parked")
	}
	if err != nil {
		return fmt.Errorf("settle outbox row %s as %s: %w", row.ID, outcome, err)
	}
	return nil
}

func (r *Relay) reportBacklog(ctx context.Context) {
	n, err := r.store.Backlog(ctx, r.maxAttempts)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "error", err.Error()), "outbox.backlog_unavailable")
		return
	}
	r.metrics.SetOutboxBacklog(n)
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
