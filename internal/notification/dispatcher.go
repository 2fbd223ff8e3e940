// Package notification implements the notification dispatcher (spec
// component H): a documented contract over the job queue with a stub
// worker, no real delivery channel wired up.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/wallethub/ledgercore/internal/application/ports"
	"github.com/wallethub/ledgercore/internal/domain/events"
)

const jobType = "notification"

// Dispatcher subscribes to transaction lifecycle events and enqueues a
// notification job per event; the worker only logs, standing in for
// whatever channel (email, push, SMS) a deployment wires in later.
type Dispatcher struct {
	queue ports.Queue
}

// New wires a Dispatcher over queue.
func New(queue ports.Queue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

var watchedEventTypes = []string{
	events.TypeTransactionInitiated,
	events.TypeTransactionCompleted,
	events.TypeTransactionFailed,
	events.TypeCreditSuccess,
}

// Start registers the dispatcher's event reactions on bus.
func (d *Dispatcher) Start(bus ports.Bus) error {
	for _, eventType := range watchedEventTypes {
		if err := bus.Subscribe(eventType, d.onEvent); err != nil {
			return err
		}
	}
	return nil
}

type notificationJob struct {
	EventType     string `json:"eventType"`
	TransactionID string `json:"transactionId"`
}

func (d *Dispatcher) onEvent(ctx context.Context, event events.Event) error {
	job := notificationJob{EventType: event.EventType, TransactionID: event.TransactionID}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("notification: marshal job: %w", err)
	}

	jobID := event.TransactionID + ":" + event.EventType
	return d.queue.Enqueue(ctx, jobType, data, ports.JobOptions{JobID: jobID, Attempts: 3})
}

// StartWorker runs concurrency worker goroutines draining the
// notification queue until ctx is cancelled.
func (d *Dispatcher) StartWorker(ctx context.Context, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	for i := 0; i < concurrency; i++ {
		go func() {
			if err := d.queue.Consume(ctx, jobType, d.handleJob); err != nil {
				slog.Default().Error("notification: worker stopped", "error", err)
			}
		}()
	}
}

// handleJob is the stub delivery channel: it logs the notification at
// info level. A real deployment replaces this with an email/push/SMS
// integration without touching the dispatch logic above.
func (d *Dispatcher) handleJob(ctx context.Context, job ports.Job) error {
	var njob notificationJob
	if err := json.Unmarshal(job.Data, &njob); err != nil {
		slog.Default().Error("notification: corrupt job payload", "jobId", job.ID, "error", err)
		return nil
	}
	slog.Default().Info("notification dispatched",
		"eventType", njob.EventType, "transactionId", njob.TransactionID)
	return nil
}
