package workers

import (
	"context"
	"log/slog"

	"github.com/riverqueue/river"
)

// expiryBatchSize bounds one sweep so a backlog cannot hold a worker slot
// for long; the next periodic run picks up the rest.
const expiryBatchSize = 200

// ExpireTasksJobArgs is the periodic sweep retiring tasks past their
// deadline.
type ExpireTasksJobArgs struct{}

func (ExpireTasksJobArgs) Kind() string { return "expire_tasks" }

// TaskExpirer is the slice of the task flow the sweep needs.
type TaskExpirer interface {
	ExpireDue(ctx context.Context, limit int) (int, error)
}

type ExpireTasksWorker struct {
	river.WorkerDefaults[ExpireTasksJobArgs]
	flow TaskExpirer
	log  *slog.Logger
}

func NewExpireTasksWorker(flow TaskExpirer, log *slog.Logger) *ExpireTasksWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ExpireTasksWorker{flow: flow, log: log}
}

func (w *ExpireTasksWorker) Work(ctx context.Context, job *river.Job[ExpireTasksJobArgs]) error {
	expired, err := w.flow.ExpireDue(ctx, expiryBatchSize)
	if err != nil {
		return err
	}
	if expired > 0 {
		w.log.Info("expiry sweep finished", "expired", expired)
	}
	return nil
}
