package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/vendor-outreach/internal/handler"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/queue"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/scheduler"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

type stubGenerator struct{}

func (stubGenerator) Draft(ctx context.Context, p model.ProfileSnapshot, ch model.Channel, u model.Urgency) (model.GeneratedContent, error) {
	return model.GeneratedContent{Channel: ch, Subject: "Work with us, " + p.BusinessName, Body: "..."}, nil
}

type recordingTransport struct {
	mu   sync.Mutex
	sent []service.OutboundEmail
}

func (t *recordingTransport) Send(ctx context.Context, msg service.OutboundEmail) (service.DeliveryReceipt, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, msg)
	return service.DeliveryReceipt{MessageID: msg.IdempotencyKey}, nil
}

func (t *recordingTransport) subjects() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sent))
	for _, m := range t.sent {
		out = append(out, m.Subject)
	}
	return out
}

// A qualified vendor with an open opportunity gets a draft, an urgent send ten
// minutes later, one follow-up, and then nothing once they enter compliance review.
func TestOutreachScenario(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: start}

	vendors := repository.NewInMemoryVendorRepository(model.Vendor{
		ID:                   "V1",
		Status:               model.VendorPendingReview,
		HasActiveOpportunity: true,
		Contact: model.Contact{
			Email:        "owner@v1.test",
			BusinessName: "Casa Flores",
			Capabilities: []string{"florals"},
		},
	})
	tasks := repository.NewInMemoryTaskRepository()
	tasks.Now = clock.Now
	audit := repository.NewInMemoryAuditRepository()
	transport := &recordingTransport{}
	hours := scheduler.Default()

	orch := &service.Orchestrator{
		Vendors: vendors, Tasks: tasks, Audit: audit,
		Hours: hours, FollowUpHour: 10, Now: clock.Now,
	}
	feed := queue.NewInMemoryQueue()
	require.NoError(t, orch.Subscribe(feed))
	lifecycle := &service.LifecycleService{Vendors: vendors, Audit: audit, Queue: feed, Now: clock.Now}

	d := &Dispatcher{
		Tasks: tasks,
		Handlers: handler.Registry{
			model.TaskGenerate: &handler.GenerateHandler{Vendors: vendors, Generator: stubGenerator{}, Audit: audit, Hours: hours, Now: clock.Now},
			model.TaskSend:     &handler.SendHandler{Vendors: vendors, Transport: transport, Audit: audit, Outreach: orch, Now: clock.Now},
			model.TaskFollowUp: &handler.FollowUpHandler{Vendors: vendors, Transport: transport, Audit: audit, Copy: handler.DefaultCopybook()},
		},
		Audit:    audit,
		WorkerID: "w-scenario",
		Now:      clock.Now,
	}

	_, err := lifecycle.TransitionStatus(ctx, "V1", model.VendorQualified)
	require.NoError(t, err)
	feed.Wait()

	// Monday 10:00: draft generated, urgent send queued for 10:10.
	report, err := d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	all, _ := tasks.ListBySubject(ctx, "V1")
	require.Len(t, all, 2)
	assert.Equal(t, model.TaskSend, all[1].Type)
	assert.Equal(t, start.Add(10*time.Minute), all[1].ScheduledAt)

	// 10:10: email goes out and the drip is scheduled.
	clock.Set(start.Add(10 * time.Minute))
	_, err = d.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Work with us, Casa Flores"}, transport.subjects())

	v, err := vendors.GetByID(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, model.VendorAwaitingOnboarding, v.Status)
	assert.Equal(t, model.OutreachSent, v.OutreachStatus)

	var followUps []*model.QueueTask
	all, _ = tasks.ListBySubject(ctx, "V1")
	for _, task := range all {
		if task.Type == model.TaskFollowUp {
			followUps = append(followUps, task)
		}
	}
	require.Len(t, followUps, 4)
	for i, days := range []int{3, 7, 14, 21} {
		assert.Equal(t, time.Date(2024, time.June, 3+days, 10, 0, 0, 0, time.UTC), followUps[i].ScheduledAt)
	}

	// Thursday 10:00: first follow-up.
	clock.Set(time.Date(2024, time.June, 6, 10, 0, 0, 0, time.UTC))
	_, err = d.Tick(ctx)
	require.NoError(t, err)
	require.Len(t, transport.subjects(), 2)
	assert.Equal(t, "Following up: partnering with Casa Flores", transport.subjects()[1])

	// Vendor moves on; the remaining three are cancelled.
	_, err = lifecycle.TransitionStatus(ctx, "V1", model.VendorComplianceReview)
	require.NoError(t, err)
	feed.Wait()

	clock.Set(time.Date(2024, time.July, 3, 10, 0, 0, 0, time.UTC))
	report, err = d.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Fetched)
	assert.Len(t, transport.subjects(), 2)

	cancelled := 0
	all, _ = tasks.ListBySubject(ctx, "V1")
	for _, task := range all {
		if task.Status == model.TaskCancelled {
			cancelled++
		}
	}
	assert.Equal(t, 3, cancelled)

	assert.Equal(t, []string{
		model.AuditStatusChanged,
		model.AuditOutreachQueued,
		model.AuditDraftGenerated,
		model.AuditOutreachSent,
		model.AuditStatusChanged,
		model.AuditFollowUpScheduled,
		model.AuditFollowUpSent,
		model.AuditStatusChanged,
		model.AuditTasksCancelled,
	}, audit.Types("V1"))
}
