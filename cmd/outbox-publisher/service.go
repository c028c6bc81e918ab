package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/gpo-backend/pkg/config"
	"github.com/angelmondragon/gpo-backend/pkg/db/models"
	"github.com/angelmondragon/gpo-backend/pkg/logger"
	"github.com/angelmondragon/gpo-backend/pkg/metrics"
	"github.com/angelmondragon/gpo-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond

	reasonNonRetryable = "non_retryable"
	reasonMaxAttempts  = "max_attempts"
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	OrderedPublisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	Metrics          *metrics.OutboxMetrics
	PublisherFactory publisherFactory
}

// Service relays committed outbox rows to Pub/Sub. Rows of one aggregate
// are published in creation order: once a row fails, later rows of the same
// group order wait for the next batch.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	pubsub      pubSubClient
	repo        outboxRepository
	registry    registryResolver
	metrics     *metrics.OutboxMetrics
	publishers  publisherFactory
	batchSize   int
	maxAttempts int
	pace        *pacer
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	publishers := params.PublisherFactory
	if publishers == nil {
		publishers = cachedPublishers(params.PubSub)
	}

	outboxCfg := params.Config.Outbox
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		repo:        params.Repository,
		registry:    params.Registry,
		metrics:     params.Metrics,
		publishers:  publishers,
		batchSize:   positiveOr(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(outboxCfg.MaxAttempts, defaultMaxAttempts),
		pace:        newPacer(time.Duration(positiveOr(outboxCfg.PollIntervalMS, defaultPollMs))*time.Millisecond, maxBackoff),
	}, nil
}

// Run drains the outbox until ctx is cancelled. A batch that settled rows is
// followed immediately by the next one; a batch with nothing settled waits
// one poll interval and a failing batch backs off exponentially.
func (s *Service) Run(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	}
	for _, check := range checks {
		if err := check.ping(ctx); err != nil {
			s.logg.Error(ctx, check.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", check.name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		settled, err := s.drainOnce(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = s.pace.failed()
		case settled > 0:
			s.pace.reset()
			continue
		default:
			wait = s.pace.idle()
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// delivery is the outcome of handing one outbox row to Pub/Sub.
type delivery struct {
	event   models.OutboxEvent
	topic   string
	eventID string
	outcome string
	reason  string
	cause   error
}

// drainOnce locks one batch, publishes it and records each row's outcome in
// the same transaction. It returns how many rows left the queue, published
// or terminal.
func (s *Service) drainOnce(ctx context.Context) (int, error) {
	settled := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return nil
		}
		s.metrics.Batch()

		held := make(map[uuid.UUID]struct{})
		for _, event := range events {
			var d delivery
			if _, blocked := held[event.AggregateID]; blocked {
				d = delivery{event: event, outcome: metrics.OutboxDeferred}
			} else {
				d = s.deliver(ctx, event)
			}
			if d.outcome == metrics.OutboxRetry {
				held[event.AggregateID] = struct{}{}
			}
			if err := s.settle(ctx, tx, d); err != nil {
				return err
			}
			if d.outcome == metrics.OutboxPublished || d.outcome == metrics.OutboxTerminal {
				settled++
			}
		}
		return nil
	})
	return settled, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.outcome, d.reason, d.cause = metrics.OutboxTerminal, reasonNonRetryable, err
		return d
	}
	d.topic = resolved.Descriptor.Topic
	d.eventID = resolved.Envelope.EventID

	err = s.publish(ctx, event, resolved)
	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		d.outcome = metrics.OutboxPublished
	case errors.As(err, &nonRetry):
		d.outcome, d.reason, d.cause = metrics.OutboxTerminal, reasonNonRetryable, err
	case event.AttemptCount+1 >= s.maxAttempts:
		d.outcome, d.reason = metrics.OutboxTerminal, reasonMaxAttempts
		d.cause = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		d.outcome, d.cause = metrics.OutboxRetry, err
	}
	return d
}

// settle writes the delivery outcome back to the row. Terminal rows keep
// their payload and last error for manual replay; deferred rows are left
// untouched.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, d delivery) error {
	ctx = s.logg.WithFields(ctx, s.fields(d))
	var err error
	switch d.outcome {
	case metrics.OutboxPublished:
		err = s.repo.MarkPublishedTx(tx, d.event.ID)
		s.logg.Info(ctx, "outbox event published")
	case metrics.OutboxRetry:
		err = s.repo.MarkFailedTx(tx, d.event.ID, d.cause)
		s.logg.Warn(s.logg.WithField(ctx, "error", d.cause.Error()), "outbox publish failed")
	case metrics.OutboxTerminal:
		err = s.repo.MarkTerminalTx(tx, d.event.ID, d.cause, s.maxAttempts)
		s.logg.Warn(s.logg.WithField(ctx, "error", d.cause.Error()), "outbox event will not be retried")
	case metrics.OutboxDeferred:
		s.logg.Debug(ctx, "outbox event held behind an earlier failure")
	}
	if err != nil {
		return fmt.Errorf("mark %s %s: %w", d.outcome, d.event.ID, err)
	}
	s.metrics.Event(string(d.event.EventType), d.outcome)
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	pub := s.publishers(resolved.Descriptor.Topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", resolved.Descriptor.Topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(resolved.Envelope.Version),
			"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", resolved.Descriptor.Topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

func (s *Service) fields(d delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID.String(),
		"attempt_count":  d.event.AttemptCount,
		"outcome":        d.outcome,
	}
	if d.outcome == metrics.OutboxRetry {
		fields["attempt_count"] = d.event.AttemptCount + 1
	}
	if d.eventID != "" {
		fields["event_id"] = d.eventID
	}
	if d.topic != "" {
		fields["topic"] = d.topic
	}
	if d.reason != "" {
		fields["terminal_reason"] = d.reason
	}
	return fields
}

// pacer tracks the wait between batches.
type pacer struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
	rng     *rand.Rand
}

func newPacer(base, max time.Duration) *pacer {
	return &pacer{
		base:    base,
		max:     max,
		current: base,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (p *pacer) reset() {
	p.current = p.base
}

func (p *pacer) idle() time.Duration {
	p.reset()
	return p.jitter(p.base)
}

func (p *pacer) failed() time.Duration {
	p.current = nextBackoff(p.current, p.base, p.max)
	return p.jitter(p.current)
}

func (p *pacer) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(p.rng.Int63n(int64(jitterWindow)))
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	if next := current * 2; next < max {
		return next
	}
	return max
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
