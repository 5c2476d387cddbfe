package handler

import (
	"context"
	"fmt"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

// FollowUpHandler sends one drip reminder, but only while the vendor is still
// waiting to onboard. Cancellation can miss a task that was already claimed.
type FollowUpHandler struct {
	Vendors   repository.VendorRepositoryInterface
	Transport service.Transport
	Audit     service.AuditSink
	Copy      Copybook
}

func (h *FollowUpHandler) Handle(ctx context.Context, task *model.QueueTask) (Outcome, error) {
	p, ok := task.Payload.(model.FollowUpPayload)
	if !ok {
		return Outcome{}, wrongPayload(task)
	}

	v, err := h.Vendors.GetByID(ctx, task.SubjectID)
	if err != nil {
		if appErrors.IsVendorNotFound(err) {
			return Outcome{Kind: Skipped, Note: "vendor not found"}, nil
		}
		return Outcome{}, err
	}

	reason := ""
	switch {
	case !v.Status.InFollowUpWindow():
		reason = fmt.Sprintf("vendor is %s", v.Status)
	case v.Contact.Email == "":
		reason = "no email on file"
	}
	if reason != "" {
		service.Record(ctx, h.Audit, task.SubjectID, model.AuditFollowUpSkipped,
			fmt.Sprintf("Follow-up %d skipped: %s", p.Sequence, reason), map[string]any{"sequence": p.Sequence})
		return Outcome{Kind: Skipped, Note: reason}, nil
	}

	copybook := h.Copy
	if copybook == nil {
		copybook = DefaultCopybook()
	}
	businessName := v.Contact.BusinessName
	if businessName == "" {
		businessName = p.Contact.BusinessName
	}
	msg, err := copybook.Render(p.Language, p.Sequence, map[string]string{"business_name": businessName})
	if err != nil {
		return Outcome{}, err
	}

	receipt, err := h.Transport.Send(ctx, service.OutboundEmail{
		To:             v.Contact.Email,
		Subject:        msg.Subject,
		Body:           msg.Body,
		IdempotencyKey: task.ID,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("send follow-up %d to %s: %w", p.Sequence, task.SubjectID, err)
	}
	service.Record(ctx, h.Audit, task.SubjectID, model.AuditFollowUpSent,
		fmt.Sprintf("Follow-up %d sent", p.Sequence),
		map[string]any{"sequence": p.Sequence, "message_id": receipt.MessageID, "language": p.Language})
	return Outcome{Kind: Completed}, nil
}
