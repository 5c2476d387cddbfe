package service

import (
	"context"
	"time"

	"github.com/unclebandit/vendor-outreach/internal/model"
)

// ContentGenerator drafts the first outreach message for a vendor.
type ContentGenerator interface {
	Draft(ctx context.Context, profile model.ProfileSnapshot, channel model.Channel, urgency model.Urgency) (model.GeneratedContent, error)
}

type OutboundEmail struct {
	To      string
	Subject string
	Body    string
	// IdempotencyKey lets the provider drop a resend of the same task.
	IdempotencyKey string
}

type DeliveryReceipt struct {
	MessageID  string
	AcceptedAt time.Time
}

type Transport interface {
	Send(ctx context.Context, msg OutboundEmail) (DeliveryReceipt, error)
}

type EnrichmentResult struct {
	Email  string
	Phone  string
	Source string // page the contact was found on
}

// Enricher recovers contact details from a vendor's website.
type Enricher interface {
	Scrape(ctx context.Context, url string) (EnrichmentResult, error)
}

type AuditSink interface {
	Append(ctx context.Context, subjectID, entryType, description string, metadata map[string]any) error
}
