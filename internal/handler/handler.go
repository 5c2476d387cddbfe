// Package handler executes one queued task of each type.
package handler

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
)

type OutcomeKind int

const (
	// Completed means the work was done.
	Completed OutcomeKind = iota
	// Skipped means there was nothing to do; the task still completes.
	Skipped
	// SMSDeferred means the message was accepted for a channel we cannot deliver yet.
	SMSDeferred
)

func (k OutcomeKind) String() string {
	switch k {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case SMSDeferred:
		return "sms_deferred"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// Outcome is the result of a successful Handle. Enqueue lists follow-on tasks
// the dispatcher stores before marking the current task done.
type Outcome struct {
	Kind    OutcomeKind
	Enqueue []model.NewTask
	Note    string
}

// TaskHandler runs a task. A returned error is a transient failure and is retried.
type TaskHandler interface {
	Handle(ctx context.Context, task *model.QueueTask) (Outcome, error)
}

// Registry maps task types to their handler.
type Registry map[model.TaskType]TaskHandler

func (r Registry) For(t model.TaskType) (TaskHandler, error) {
	h, ok := r[t]
	if !ok {
		return nil, fmt.Errorf("no handler for %q: %w", t, appErrors.ErrUnknownTaskType)
	}
	return h, nil
}

// OutreachCompleter is notified after the first message reached the vendor.
type OutreachCompleter interface {
	CompleteOutreach(ctx context.Context, vendorID string, sentAt time.Time) error
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c != nil {
		return c()
	}
	return time.Now()
}

func wrongPayload(task *model.QueueTask) error {
	return fmt.Errorf("task %s: payload %T does not match type %s: %w", task.ID, task.Payload, task.Type, appErrors.ErrUnknownTaskType)
}
