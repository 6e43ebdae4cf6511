package workers

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/localpro/backend/internal/models"
	"github.com/localpro/backend/internal/services"
)

// MatchTaskJobArgs asks the matching worker to score providers for one task.
type MatchTaskJobArgs struct {
	TaskID   uuid.UUID `json:"task_id"`
	Strategy string    `json:"strategy"`
}

func (MatchTaskJobArgs) Kind() string { return "match_task" }

// TaskMatching is the slice of the task flow the matching worker needs.
type TaskMatching interface {
	RunMatching(ctx context.Context, taskID uuid.UUID, strategy string) (*models.Task, *services.MatchResult, error)
}

type MatchTaskWorker struct {
	river.WorkerDefaults[MatchTaskJobArgs]
	flow TaskMatching
	log  *slog.Logger
}

func NewMatchTaskWorker(flow TaskMatching, log *slog.Logger) *MatchTaskWorker {
	if log == nil {
		log = slog.Default()
	}
	return &MatchTaskWorker{flow: flow, log: log}
}

func (w *MatchTaskWorker) Work(ctx context.Context, job *river.Job[MatchTaskJobArgs]) error {
	args := job.Args

	strategy := args.Strategy
	if strategy == "" {
		strategy = models.StrategyIntelligent
	}

	task, result, err := w.flow.RunMatching(ctx, args.TaskID, strategy)
	if err != nil {
		// The task may have been cancelled, deleted or advanced by the
		// customer before the job ran; nothing left to match then.
		if errors.Is(err, services.ErrNotFound) || errors.Is(err, services.ErrStateConflict) {
			w.log.Info("matching skipped", "task_id", args.TaskID, "reason", err)
			return nil
		}
		return err
	}

	w.log.Info("matching finished",
		"task_id", task.ID,
		"status", task.Status,
		"strategy", result.Strategy,
		"matches", len(result.Matches),
		"fallback", result.Fallback)
	return nil
}
