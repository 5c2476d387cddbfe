// Package worker polls the task store and runs due tasks.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/unclebandit/vendor-outreach/internal/handler"
	"github.com/unclebandit/vendor-outreach/internal/logger"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

const (
	DefaultMaxRetries  = 5
	DefaultInterval    = time.Minute
	DefaultTickTimeout = 50 * time.Second
	DefaultClaimLease  = 5 * time.Minute
)

// Ticker abstracts time.Ticker so tests can drive Run.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.Ticker.C }

func NewTimeTicker(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }

// Dispatcher runs due tasks one at a time.
type Dispatcher struct {
	Tasks    repository.TaskRepositoryInterface
	Handlers handler.Registry
	Audit    service.AuditSink

	WorkerID    string
	Limit       int
	MaxRetries  int
	Interval    time.Duration
	TickTimeout time.Duration
	ClaimLease  time.Duration

	Now       func() time.Time
	NewTicker func(time.Duration) Ticker
	Log       *logrus.Logger
}

type TickReport struct {
	Requeued  int
	Fetched   int
	Claimed   int
	Completed int
	Skipped   int
	Deferred  int
	Retried   int
	Failed    int
}

// Backoff is the delay before attempt retryCount+1: 2^retryCount minutes.
func Backoff(retryCount int) time.Duration {
	return time.Duration(1<<uint(retryCount)) * time.Minute
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) log() *logrus.Logger {
	if d.Log != nil {
		return d.Log
	}
	return logger.GetAppLogger()
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Tick processes one batch of due tasks. It returns an error only when the
// store fails; handler failures are recorded on the task and never abort the tick.
func (d *Dispatcher) Tick(ctx context.Context) (TickReport, error) {
	var report TickReport
	now := d.now()

	requeued, err := d.Tasks.RequeueExpiredClaims(ctx, now)
	if err != nil {
		return report, fmt.Errorf("requeue expired claims: %w", err)
	}
	report.Requeued = requeued

	tasks, err := d.Tasks.FetchDue(ctx, now, orDefault(d.Limit, repository.DefaultFetchLimit))
	if err != nil {
		return report, err
	}
	report.Fetched = len(tasks)

	tickCtx, cancel := context.WithTimeout(ctx, orDefault(d.TickTimeout, DefaultTickTimeout))
	defer cancel()

	for _, task := range tasks {
		if tickCtx.Err() != nil {
			// Out of time; the rest stay due for the next tick.
			break
		}
		claimedAt := d.now()
		ok, err := d.Tasks.Claim(ctx, task.ID, d.WorkerID, claimedAt, claimedAt.Add(orDefault(d.ClaimLease, DefaultClaimLease)))
		if err != nil {
			return report, err
		}
		if !ok {
			continue
		}
		report.Claimed++

		if err := d.process(tickCtx, task, &report); err != nil {
			return report, err
		}
	}
	return report, nil
}

func (d *Dispatcher) process(ctx context.Context, task *model.QueueTask, report *TickReport) error {
	entry := d.log().WithFields(logrus.Fields{"task_id": task.ID, "type": task.Type, "subject_id": task.SubjectID})
	// Results are persisted even when the tick deadline cut the handler short.
	store := context.WithoutCancel(ctx)

	out, err := d.run(ctx, task)
	if err != nil {
		return d.fail(store, task, err, report)
	}

	for _, next := range out.Enqueue {
		id, err := d.Tasks.Enqueue(store, next)
		if err != nil {
			return fmt.Errorf("enqueue follow-on %s task for %s: %w", next.Type(), task.ID, err)
		}
		entry.WithFields(logrus.Fields{"next_task_id": id, "next_type": next.Type(), "scheduled_at": next.ScheduledAt}).
			Debug("follow-on task queued")
	}

	status := model.TaskCompleted
	switch out.Kind {
	case handler.SMSDeferred:
		status = model.TaskDeferred
		report.Deferred++
	case handler.Skipped:
		report.Skipped++
	default:
		report.Completed++
	}
	if err := d.Tasks.UpdateStatus(store, task.ID, status, model.TaskUpdate{}); err != nil {
		return err
	}
	entry.WithFields(logrus.Fields{"outcome": out.Kind.String(), "note": out.Note}).Info("task done")
	return nil
}

// run invokes the handler, converting a panic into an ordinary failure.
func (d *Dispatcher) run(ctx context.Context, task *model.QueueTask) (out handler.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	h, err := d.Handlers.For(task.Type)
	if err != nil {
		return handler.Outcome{}, err
	}
	return h.Handle(ctx, task)
}

func (d *Dispatcher) fail(ctx context.Context, task *model.QueueTask, cause error, report *TickReport) error {
	retryCount := task.RetryCount + 1
	msg := cause.Error()
	entry := d.log().WithFields(logrus.Fields{
		"task_id": task.ID, "type": task.Type, "subject_id": task.SubjectID, "retry_count": retryCount,
	}).WithError(cause)

	if retryCount > orDefault(d.MaxRetries, DefaultMaxRetries) {
		if err := d.Tasks.UpdateStatus(ctx, task.ID, model.TaskFailed, model.TaskUpdate{RetryCount: &retryCount, Error: &msg}); err != nil {
			return err
		}
		report.Failed++
		entry.Error("task failed permanently")
		service.Record(ctx, d.Audit, task.SubjectID, model.AuditTaskFailed,
			fmt.Sprintf("%s task failed after %d attempts: %s", task.Type, retryCount, msg),
			map[string]any{"task_id": task.ID, "task_type": string(task.Type), "retry_count": retryCount})
		return nil
	}

	next := d.now().Add(Backoff(retryCount))
	if err := d.Tasks.UpdateStatus(ctx, task.ID, model.TaskRetry, model.TaskUpdate{
		RetryCount: &retryCount, ScheduledAt: &next, Error: &msg,
	}); err != nil {
		return err
	}
	report.Retried++
	entry.WithField("next_attempt", next).Warn("task failed, retry scheduled")
	return nil
}

// Run ticks immediately and then on every interval until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	newTicker := d.NewTicker
	if newTicker == nil {
		newTicker = NewTimeTicker
	}
	t := newTicker(orDefault(d.Interval, DefaultInterval))
	defer t.Stop()

	d.log().WithField("worker_id", d.WorkerID).Info("dispatcher started")
	for {
		d.tickOnce(ctx)
		select {
		case <-ctx.Done():
			d.log().WithField("worker_id", d.WorkerID).Info("dispatcher stopped")
			return nil
		case <-t.C():
		}
	}
}

func (d *Dispatcher) tickOnce(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			d.log().WithField("panic", r).Error("dispatcher tick panicked")
		}
	}()

	report, err := d.Tick(ctx)
	entry := d.log().WithFields(logrus.Fields{
		"requeued": report.Requeued, "fetched": report.Fetched, "claimed": report.Claimed,
		"completed": report.Completed, "skipped": report.Skipped, "deferred": report.Deferred,
		"retried": report.Retried, "failed": report.Failed,
	})
	if err != nil {
		entry.WithError(err).Error("dispatcher tick aborted")
		return
	}
	if report.Fetched > 0 || report.Requeued > 0 {
		entry.Info("dispatcher tick")
	}
}
