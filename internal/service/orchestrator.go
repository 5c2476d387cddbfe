// internal/service/orchestrator.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/logger"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/queue"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/scheduler"
)

// FollowUpOffsets are the drip steps, in days after the first send.
var FollowUpOffsets = []int{3, 7, 14, 21}

// Orchestrator turns vendor lifecycle changes into queued campaign work.
type Orchestrator struct {
	Vendors  repository.VendorRepositoryInterface
	Tasks    repository.TaskRepositoryInterface
	Audit    AuditSink
	Enricher Enricher // optional

	Hours        scheduler.BusinessHours
	FollowUpHour int
	Now          func() time.Time
	Log          *logrus.Logger
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *Orchestrator) log() *logrus.Logger {
	if o.Log != nil {
		return o.Log
	}
	return logger.GetAppLogger()
}

// Subscribe attaches HandleStatusChange to the vendor status change feed.
func (o *Orchestrator) Subscribe(q queue.Queue) error {
	return q.Subscribe(queue.TopicVendorStatusChanges, func(ctx context.Context, body []byte) error {
		var ev model.StatusChanged
		if err := json.Unmarshal(body, &ev); err != nil {
			// Redelivery cannot fix a malformed event.
			o.log().WithError(err).Error("dropping malformed status change event")
			return nil
		}
		return o.HandleStatusChange(ctx, ev)
	})
}

// HandleStatusChange starts outreach for newly qualified vendors and cancels
// queued work for vendors that moved past outreach.
func (o *Orchestrator) HandleStatusChange(ctx context.Context, ev model.StatusChanged) error {
	if ev.From == ev.To {
		return nil
	}
	entry := o.log().WithFields(logrus.Fields{"vendor_id": ev.VendorID, "from": ev.From, "to": ev.To})

	switch {
	case ev.To.OutreachEligible():
		entry.Info("vendor qualified, starting outreach")
		return o.startOutreach(ctx, ev.VendorID)
	case ev.To.PastOutreach():
		_, err := o.CancelCampaign(ctx, ev.VendorID, fmt.Sprintf("vendor moved to %s", ev.To))
		return err
	}
	return nil
}

func (o *Orchestrator) startOutreach(ctx context.Context, vendorID string) error {
	v, err := o.Vendors.GetByID(ctx, vendorID)
	if err != nil {
		if appErrors.IsVendorNotFound(err) {
			o.log().WithField("vendor_id", vendorID).Warn("status change for unknown vendor")
			return nil
		}
		return err
	}
	if !v.Status.OutreachEligible() {
		// Stale event: the vendor has moved on since it was published.
		return nil
	}

	if v.Contact.Email == "" {
		if v, err = o.recoverContact(ctx, v); err != nil || v == nil {
			return err
		}
	}

	if missing := ProfileGaps(v); len(missing) > 0 {
		if _, err := UpdateVendor(ctx, o.Vendors, vendorID, func(cur *model.Vendor) error {
			cur.OutreachStatus = model.OutreachProfileIncomplete
			cur.MissingFields = missing
			return nil
		}); err != nil {
			return err
		}
		Record(ctx, o.Audit, vendorID, model.AuditProfileIncomplete,
			"Outreach held: profile incomplete", map[string]any{"missing_fields": missing})
		return nil
	}

	if _, err := o.Tasks.Enqueue(ctx, model.NewTask{
		SubjectID:   vendorID,
		ScheduledAt: o.now(),
		Payload:     model.GeneratePayload{Profile: v.Snapshot(), Channel: model.ChannelEmail},
		DedupeKey:   "generate:" + vendorID,
	}); err != nil {
		return fmt.Errorf("enqueue generate task for %s: %w", vendorID, err)
	}

	if _, err := UpdateVendor(ctx, o.Vendors, vendorID, func(cur *model.Vendor) error {
		cur.OutreachStatus = model.OutreachPending
		cur.MissingFields = nil
		return nil
	}); err != nil {
		return err
	}
	Record(ctx, o.Audit, vendorID, model.AuditOutreachQueued, "Outreach draft queued", nil)
	return nil
}

// recoverContact tries to find an email on the vendor's website. It returns a nil
// vendor when outreach cannot proceed; the vendor is then marked NEEDS_CONTACT.
func (o *Orchestrator) recoverContact(ctx context.Context, v *model.Vendor) (*model.Vendor, error) {
	if v.Contact.Website == "" || o.Enricher == nil {
		return nil, o.markNeedsContact(ctx, v.ID, "no email or website on file")
	}

	if _, err := UpdateVendor(ctx, o.Vendors, v.ID, func(cur *model.Vendor) error {
		cur.OutreachStatus = model.OutreachEnriching
		return nil
	}); err != nil {
		return nil, err
	}

	res, err := o.Enricher.Scrape(ctx, v.Contact.Website)
	if err != nil {
		o.log().WithField("vendor_id", v.ID).WithError(err).Warn("website enrichment failed")
		return nil, o.markNeedsContact(ctx, v.ID, "website enrichment failed: "+err.Error())
	}
	if res.Email == "" {
		return nil, o.markNeedsContact(ctx, v.ID, "no email found on website")
	}

	updated, err := UpdateVendor(ctx, o.Vendors, v.ID, func(cur *model.Vendor) error {
		cur.Contact.Email = res.Email
		if cur.Contact.Phone == "" {
			cur.Contact.Phone = res.Phone
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	Record(ctx, o.Audit, v.ID, model.AuditEnrichment, "Contact recovered from website",
		map[string]any{"email": res.Email, "phone": res.Phone, "source": res.Source})
	return updated, nil
}

func (o *Orchestrator) markNeedsContact(ctx context.Context, vendorID, reason string) error {
	if _, err := UpdateVendor(ctx, o.Vendors, vendorID, func(cur *model.Vendor) error {
		cur.OutreachStatus = model.OutreachNeedsContact
		return nil
	}); err != nil {
		return err
	}
	Record(ctx, o.Audit, vendorID, model.AuditNeedsContact, "Outreach held: "+reason, nil)
	return nil
}

// ProfileGaps lists the profile fields outreach requires but the vendor lacks.
func ProfileGaps(v *model.Vendor) []string {
	var missing []string
	if strings.TrimSpace(v.Contact.BusinessName) == "" {
		missing = append(missing, "business_name")
	}
	if len(v.Contact.Capabilities) == 0 {
		missing = append(missing, "capabilities")
	}
	if strings.TrimSpace(v.Contact.Email) == "" {
		missing = append(missing, "email")
	}
	return missing
}

// CancelCampaign cancels every queued task of the vendor. Tasks already claimed
// by a worker still run; FOLLOW_UP re-checks the vendor before sending.
func (o *Orchestrator) CancelCampaign(ctx context.Context, vendorID, reason string) (int, error) {
	n, err := o.Tasks.CancelBySubject(ctx, vendorID)
	if err != nil {
		return 0, fmt.Errorf("cancel campaign for %s: %w", vendorID, err)
	}
	o.log().WithFields(logrus.Fields{"vendor_id": vendorID, "cancelled": n}).Info("campaign tasks cancelled")
	if n > 0 {
		Record(ctx, o.Audit, vendorID, model.AuditTasksCancelled,
			fmt.Sprintf("Cancelled %d queued task(s): %s", n, reason), map[string]any{"count": n})
	}
	return n, nil
}

// CompleteOutreach records a successful first send and schedules the drip sequence.
func (o *Orchestrator) CompleteOutreach(ctx context.Context, vendorID string, sentAt time.Time) error {
	var from model.VendorStatus
	v, err := UpdateVendor(ctx, o.Vendors, vendorID, func(cur *model.Vendor) error {
		from = cur.Status
		cur.OutreachStatus = model.OutreachSent
		if cur.Status.OutreachEligible() {
			cur.Status = model.VendorAwaitingOnboarding
		}
		return nil
	})
	if err != nil {
		return err
	}
	if from != v.Status {
		Record(ctx, o.Audit, vendorID, model.AuditStatusChanged,
			fmt.Sprintf("Status changed from %s to %s", from, v.Status),
			map[string]any{"from": string(from), "to": string(v.Status)})
	}
	if !v.Status.InFollowUpWindow() {
		o.log().WithFields(logrus.Fields{"vendor_id": vendorID, "status": v.Status}).
			Info("vendor left the follow-up window, no drip scheduled")
		return nil
	}

	dates := make([]string, 0, len(FollowUpOffsets))
	for i, offset := range FollowUpOffsets {
		seq := i + 1
		at := o.Hours.FollowUpAt(sentAt, offset, o.FollowUpHour)
		if _, err := o.Tasks.Enqueue(ctx, model.NewTask{
			SubjectID:   vendorID,
			ScheduledAt: at,
			Payload: model.FollowUpPayload{
				Sequence: seq,
				Language: v.Contact.Language(),
				Contact:  v.ContactSnapshot(),
			},
			DedupeKey: fmt.Sprintf("followup:%s:%d", vendorID, seq),
		}); err != nil {
			return fmt.Errorf("enqueue follow-up %d for %s: %w", seq, vendorID, err)
		}
		dates = append(dates, at.Format(time.RFC3339))
	}
	Record(ctx, o.Audit, vendorID, model.AuditFollowUpScheduled,
		fmt.Sprintf("Scheduled %d follow-ups", len(dates)), map[string]any{"scheduled_at": dates})
	return nil
}
