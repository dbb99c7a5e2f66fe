// Package queue holds the daily ticket allocator, the patient state machine, the room
// assignment engine, the daily reset and the reconciliation pass. Every mutation runs as a
// single store transaction, is retried on contention and is announced on the fan-out only
// after it has committed.
package queue

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ameliapapa/queue-manager-v2-sub000/internal/clock"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/fanout"
	"github.com/ameliapapa/queue-manager-v2-sub000/internal/store"
)

const (
	DefaultStartNumber = 1
	DefaultMaxNumber   = 999
	DefaultMaxAttempts = 5
)

type Options struct {
	StartNumber int
	MaxNumber   int
	Location    *time.Location
	MaxAttempts int
	Logger      *zap.Logger
	Publisher   fanout.Publisher
	Clock       clock.Clock
	// RetryInterval is the first backoff delay after a conflict.
	RetryInterval time.Duration
}

type Service struct {
	store         store.Store
	startNumber   int
	maxNumber     int
	location      *time.Location
	maxAttempts   int
	retryInterval time.Duration
	logger        *zap.Logger
	publisher     fanout.Publisher
	clock         clock.Clock
	tracer        trace.Tracer
}

func NewService(st store.Store, options Options) *Service {
	start := options.StartNumber
	if start <= 0 {
		start = DefaultStartNumber
	}
	max := options.MaxNumber
	if max <= 0 {
		max = DefaultMaxNumber
	}
	if max < start {
		max = start
	}
	attempts := options.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	interval := options.RetryInterval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	loc := options.Location
	if loc == nil {
		loc = time.Local
	}
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	publisher := options.Publisher
	if publisher == nil {
		publisher = fanout.NewLogPublisher(logger)
	}
	clk := options.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		store:         st,
		startNumber:   start,
		maxNumber:     max,
		location:      loc,
		maxAttempts:   attempts,
		retryInterval: interval,
		logger:        logger,
		publisher:     publisher,
		clock:         clk,
		tracer:        otel.Tracer("queue"),
	}
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}

// instant reads the clock once and returns the UTC timestamp together with the queue day
// of that same instant, so both always agree across midnight.
func (s *Service) instant() (time.Time, string) {
	now := s.clock.Now()
	return now.UTC(), clock.Day(now, s.location)
}

// Today is the canonical queue day for the current instant.
func (s *Service) Today() string {
	_, day := s.instant()
	return day
}

func (s *Service) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "queue."+name)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) publish(ctx context.Context, events ...fanout.Event) {
	for _, event := range events {
		if err := s.publisher.Publish(ctx, event); err != nil {
			s.logger.Warn("fan-out publish failed",
				zap.String("type", event.Type),
				zap.String("entity_id", event.EntityID),
				zap.Error(err),
			)
		}
	}
}
