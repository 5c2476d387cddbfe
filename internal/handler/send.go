package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/logger"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

// SendHandler delivers the drafted first message using the vendor's current contact.
type SendHandler struct {
	Vendors   repository.VendorRepositoryInterface
	Transport service.Transport
	Audit     service.AuditSink
	Outreach  OutreachCompleter
	Now       func() time.Time
}

func (h *SendHandler) Handle(ctx context.Context, task *model.QueueTask) (Outcome, error) {
	p, ok := task.Payload.(model.SendPayload)
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
	if v.Status.PastOutreach() {
		service.Record(ctx, h.Audit, task.SubjectID, model.AuditOutreachSkipped,
			fmt.Sprintf("Outreach not sent: vendor is %s", v.Status), map[string]any{"task_id": task.ID})
		return Outcome{Kind: Skipped, Note: fmt.Sprintf("vendor is %s", v.Status)}, nil
	}

	switch {
	case v.Contact.Email != "":
		receipt, err := h.Transport.Send(ctx, service.OutboundEmail{
			To:             v.Contact.Email,
			Subject:        p.Content.Subject,
			Body:           p.Content.Body,
			IdempotencyKey: task.ID,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("send outreach to %s: %w", task.SubjectID, err)
		}
		service.Record(ctx, h.Audit, task.SubjectID, model.AuditOutreachSent, "Outreach email sent",
			map[string]any{"message_id": receipt.MessageID, "to": v.Contact.Email})

		// The email is out. Failing the task now would deliver it a second time on retry.
		if err := h.Outreach.CompleteOutreach(ctx, task.SubjectID, clock(h.Now).now()); err != nil {
			logger.GetAppLogger().WithFields(logrus.Fields{"task_id": task.ID, "vendor_id": task.SubjectID}).
				WithError(err).Error("outreach sent but follow-up scheduling failed")
			service.Record(ctx, h.Audit, task.SubjectID, model.AuditFollowUpScheduleFailed,
				"Outreach sent but follow-ups were not scheduled: "+err.Error(),
				map[string]any{"task_id": task.ID, "message_id": receipt.MessageID})
			return Outcome{Kind: Completed, Note: "follow-up scheduling failed"}, nil
		}
		return Outcome{Kind: Completed}, nil

	case v.Contact.Phone != "":
		service.Record(ctx, h.Audit, task.SubjectID, model.AuditSMSDeferred,
			"SMS outreach accepted but not transmitted", map[string]any{"phone": v.Contact.Phone})
		return Outcome{Kind: SMSDeferred, Note: "sms delivery not available"}, nil
	}

	if _, err := service.UpdateVendor(ctx, h.Vendors, task.SubjectID, func(cur *model.Vendor) error {
		cur.OutreachStatus = model.OutreachNeedsContact
		return nil
	}); err != nil {
		return Outcome{}, err
	}
	service.Record(ctx, h.Audit, task.SubjectID, model.AuditNeedsContact, "Outreach held: no email or phone at send time", nil)
	return Outcome{Kind: Skipped, Note: "no contact"}, nil
}
