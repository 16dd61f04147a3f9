package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
)

// Scheduler asks the platform to run a drain pass. The background
// adapter defers the pass to the asynq worker server; the inline adapter
// runs it synchronously when no background execution is available.
type Scheduler interface {
	// Schedule requests a drain at the next opportunity.
	Schedule(ctx context.Context) error
	// Ping reports whether the scheduling backend is reachable.
	Ping(ctx context.Context) error
	// Mode names the adapter for status reporting.
	Mode() string
}

// AsynqScheduler defers drains to the asynq worker server via Redis.
type AsynqScheduler struct {
	client *asynq.Client
	ping   func(ctx context.Context) error
}

func NewAsynqScheduler(client *asynq.Client, ping func(ctx context.Context) error) *AsynqScheduler {
	return &AsynqScheduler{client: client, ping: ping}
}

func (s *AsynqScheduler) Schedule(_ context.Context) error {
	if _, err := s.client.Enqueue(NewDrainTask(), DrainTaskOptions()...); err != nil {
		return fmt.Errorf("enqueue drain task: %w", err)
	}
	return nil
}

func (s *AsynqScheduler) Ping(ctx context.Context) error {
	if s.ping == nil {
		return nil
	}
	return s.ping(ctx)
}

func (s *AsynqScheduler) Mode() string { return "background" }

// InlineScheduler runs the drain in the calling process. Used when Redis
// is unavailable and as the deterministic adapter in tests.
type InlineScheduler struct {
	drainer *Drainer
}

func NewInlineScheduler(drainer *Drainer) *InlineScheduler {
	return &InlineScheduler{drainer: drainer}
}

func (s *InlineScheduler) Schedule(ctx context.Context) error {
	return s.drainer.Drain(ctx)
}

func (s *InlineScheduler) Ping(context.Context) error { return nil }

func (s *InlineScheduler) Mode() string { return "inline" }
