package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/riverqueue/river"
)

// SubscriptionLookup resolves the endpoints an event should be delivered to.
type SubscriptionLookup interface {
	FindActiveForKind(ctx context.Context, kind string) ([]*Subscription, error)
}

type DeliverEventWorker struct {
	river.WorkerDefaults[DeliverEventJobArgs]
	subs       SubscriptionLookup
	httpClient *http.Client
	log        *slog.Logger
}

func NewDeliverEventWorker(subs SubscriptionLookup, log *slog.Logger) *DeliverEventWorker {
	if log == nil {
		log = slog.Default()
	}
	return &DeliverEventWorker{
		subs:       subs,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        log,
	}
}

// Work posts the event to every subscribed endpoint. Any endpoint failure
// makes the job retryable; delivery is at-least-once and receivers must
// dedupe on (kind, task_id, occurred_at).
func (w *DeliverEventWorker) Work(ctx context.Context, job *river.Job[DeliverEventJobArgs]) error {
	args := job.Args

	subs, err := w.subs.FindActiveForKind(ctx, args.Event.Kind)
	if err != nil {
		return fmt.Errorf("load subscriptions: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	body, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	var failed int
	for _, sub := range subs {
		if err := w.post(ctx, sub.URL, body); err != nil {
			w.log.Warn("webhook delivery failed", "kind", args.Event.Kind, "url", sub.URL, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deliveries failed", failed, len(subs))
	}
	return nil
}

func (w *DeliverEventWorker) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return nil
}
