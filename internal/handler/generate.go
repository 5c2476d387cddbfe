package handler

import (
	"context"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/scheduler"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

// GenerateHandler drafts the outreach message and queues its SEND for the next slot.
// With Vendors set it first checks the vendor has not moved past outreach.
type GenerateHandler struct {
	Vendors   repository.VendorRepositoryInterface
	Generator service.ContentGenerator
	Audit     service.AuditSink
	Hours     scheduler.BusinessHours
	Now       func() time.Time
}

func (h *GenerateHandler) Handle(ctx context.Context, task *model.QueueTask) (Outcome, error) {
	p, ok := task.Payload.(model.GeneratePayload)
	if !ok {
		return Outcome{}, wrongPayload(task)
	}

	if h.Vendors != nil {
		v, err := h.Vendors.GetByID(ctx, task.SubjectID)
		switch {
		case appErrors.IsVendorNotFound(err):
			return Outcome{Kind: Skipped, Note: "vendor not found"}, nil
		case err != nil:
			return Outcome{}, err
		case v.Status.PastOutreach():
			service.Record(ctx, h.Audit, task.SubjectID, model.AuditOutreachSkipped,
				fmt.Sprintf("Outreach draft not generated: vendor is %s", v.Status), map[string]any{"task_id": task.ID})
			return Outcome{Kind: Skipped, Note: fmt.Sprintf("vendor is %s", v.Status)}, nil
		}
	}

	urgency := model.UrgencyStandard
	if p.Profile.HasActiveOpportunity {
		urgency = model.UrgencyUrgent
	}

	content, err := h.Generator.Draft(ctx, p.Profile, p.Channel, urgency)
	if err != nil {
		return Outcome{}, fmt.Errorf("draft outreach for %s: %w", task.SubjectID, err)
	}
	service.Record(ctx, h.Audit, task.SubjectID, model.AuditDraftGenerated, "Outreach draft generated",
		map[string]any{"channel": string(content.Channel), "subject": content.Subject, "urgency": string(urgency)})

	sendAt := h.Hours.NextSlot(urgency, clock(h.Now).now())
	return Outcome{
		Kind: Completed,
		Enqueue: []model.NewTask{{
			SubjectID:   task.SubjectID,
			ScheduledAt: sendAt,
			Payload:     model.SendPayload{Content: content, Urgency: urgency},
			DedupeKey:   "send:" + task.SubjectID,
		}},
		Note: "send scheduled for " + sendAt.Format(time.RFC3339),
	}, nil
}
