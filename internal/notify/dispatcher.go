package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/localpro/backend/internal/services"
)

// DeliverEventJobArgs is the queue payload for webhook delivery.
type DeliverEventJobArgs struct {
	Event      services.Event `json:"event"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func (DeliverEventJobArgs) Kind() string { return "deliver_event" }

// InsertFunc enqueues a delivery job. Provided by main as a closure over
// river.Client.Insert.
type InsertFunc func(ctx context.Context, args DeliverEventJobArgs) error

// Dispatcher queues domain events for webhook delivery. Publish never returns
// an error: a transition that already committed must not be rolled back
// because notification enqueueing failed.
type Dispatcher struct {
	insert InsertFunc
	log    *slog.Logger
}

func NewDispatcher(insert InsertFunc, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{insert: insert, log: log}
}

var _ services.NotifySink = (*Dispatcher)(nil)

func (d *Dispatcher) Publish(ctx context.Context, ev services.Event) {
	err := d.insert(ctx, DeliverEventJobArgs{Event: ev, OccurredAt: time.Now().UTC()})
	if err != nil {
		d.log.Error("enqueue event delivery failed", "kind", ev.Kind, "task_id", ev.TaskID, "error", err)
	}
}
