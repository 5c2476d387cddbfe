// internal/model/audit.go
package model

import "time"

// Audit entry types written by the scheduler.
const (
	AuditDraftGenerated    = "draft_generated"
	AuditOutreachSent      = "outreach_sent"
	AuditSMSDeferred       = "sms_deferred"
	AuditFollowUpSent      = "followup_sent"
	AuditFollowUpSkipped   = "followup_skipped"
	AuditFollowUpScheduled = "followup_scheduled"
	AuditTasksCancelled    = "tasks_cancelled"
	AuditTaskFailed        = "task_failed"
	AuditProfileIncomplete = "profile_incomplete"
	AuditNeedsContact      = "needs_contact"
	AuditEnrichment        = "enrichment"
	AuditOutreachQueued    = "outreach_queued"
	AuditStatusChanged     = "status_changed"

	AuditOutreachSkipped        = "outreach_skipped"
	AuditFollowUpScheduleFailed = "followup_schedule_failed"
)

type AuditEntry struct {
	ID          int64          `db:"id" json:"id"`
	SubjectID   string         `db:"subject_id" json:"subject_id"`
	Type        string         `db:"type" json:"type"`
	Description string         `db:"description" json:"description"`
	Metadata    map[string]any `db:"metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time      `db:"created_at" json:"created_at"`
}
