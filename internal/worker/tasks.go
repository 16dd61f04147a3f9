package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeDrain is the asynq task kind that triggers a drain pass.
const TaskTypeDrain = "uploads:drain"

// NewDrainTask builds the drain trigger task. It carries no payload; the
// pass reads its batch from the queue store.
func NewDrainTask() *asynq.Task {
	return asynq.NewTask(TaskTypeDrain, nil)
}

// DrainWorker adapts the Drainer to asynq task processing.
type DrainWorker struct {
	drainer *Drainer
}

func NewDrainWorker(drainer *Drainer) *DrainWorker {
	return &DrainWorker{drainer: drainer}
}

// ProcessTask handles a deferred drain trigger. Errors propagate to
// asynq so a pass aborted by infrastructure trouble is re-delivered;
// individual upload failures are terminal and never bubble up here.
func (w *DrainWorker) ProcessTask(ctx context.Context, _ *asynq.Task) error {
	return w.drainer.Drain(ctx)
}

// DrainTaskOptions are the enqueue options for drain triggers. Triggers
// are cheap and idempotent, so a short retention and a couple of retries
// are enough.
func DrainTaskOptions() []asynq.Option {
	return []asynq.Option{
		asynq.Queue("uploads"),
		asynq.MaxRetry(2),
		asynq.Retention(time.Hour),
	}
}
