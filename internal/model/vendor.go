// internal/model/vendor.go
package model

import (
	"strings"
	"time"
)

type VendorStatus string

const (
	VendorPendingReview      VendorStatus = "pending_review"
	VendorQualified          VendorStatus = "qualified"
	VendorAwaitingOnboarding VendorStatus = "awaiting_onboarding"
	VendorComplianceReview   VendorStatus = "compliance_review"
	VendorVerification       VendorStatus = "verification"
	VendorScheduled          VendorStatus = "scheduled"
	VendorActive             VendorStatus = "active"
	VendorDismissed          VendorStatus = "dismissed"
)

// OutreachEligible is the status that starts a campaign.
func (s VendorStatus) OutreachEligible() bool { return s == VendorQualified }

// InFollowUpWindow is the status in which drip reminders may still go out.
func (s VendorStatus) InFollowUpWindow() bool { return s == VendorAwaitingOnboarding }

// PastOutreach reports whether queued campaign work must be cancelled.
func (s VendorStatus) PastOutreach() bool {
	switch s {
	case VendorComplianceReview, VendorVerification, VendorScheduled, VendorActive, VendorDismissed:
		return true
	}
	return false
}

func (s VendorStatus) Valid() bool {
	switch s {
	case VendorPendingReview, VendorQualified, VendorAwaitingOnboarding, VendorComplianceReview,
		VendorVerification, VendorScheduled, VendorActive, VendorDismissed:
		return true
	}
	return false
}

type OutreachStatus string

const (
	OutreachPending           OutreachStatus = "PENDING"
	OutreachEnriching         OutreachStatus = "ENRICHING"
	OutreachSent              OutreachStatus = "SENT"
	OutreachFailed            OutreachStatus = "FAILED"
	OutreachNeedsContact      OutreachStatus = "NEEDS_CONTACT"
	OutreachProfileIncomplete OutreachStatus = "PROFILE_INCOMPLETE"
)

type Contact struct {
	Email             string   `db:"email" json:"email,omitempty"`
	Phone             string   `db:"phone" json:"phone,omitempty"`
	Website           string   `db:"website" json:"website,omitempty"`
	BusinessName      string   `db:"business_name" json:"business_name"`
	Capabilities      []string `db:"capabilities" json:"capabilities"`
	PreferredLanguage string   `db:"preferred_language" json:"preferred_language,omitempty"`
}

// Vendor is the slice of the vendor record the outreach scheduler reads and writes.
type Vendor struct {
	ID                   string         `db:"id" json:"id"`
	Status               VendorStatus   `db:"status" json:"status"`
	OutreachStatus       OutreachStatus `db:"outreach_status" json:"outreach_status"`
	Contact              Contact        `json:"contact"`
	HasActiveOpportunity bool           `db:"has_active_opportunity" json:"has_active_opportunity"`
	MissingFields        []string       `db:"missing_fields" json:"missing_fields,omitempty"`
	Version              int            `db:"version" json:"version"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// Language normalizes the preferred language to one we have copy for.
func (c Contact) Language() string {
	lang := strings.ToLower(strings.TrimSpace(c.PreferredLanguage))
	if strings.HasPrefix(lang, "es") {
		return "es"
	}
	return "en"
}

// Snapshot copies the profile fields the content generator needs.
func (v *Vendor) Snapshot() ProfileSnapshot {
	caps := make([]string, len(v.Contact.Capabilities))
	copy(caps, v.Contact.Capabilities)
	return ProfileSnapshot{
		VendorID:             v.ID,
		BusinessName:         v.Contact.BusinessName,
		Capabilities:         caps,
		Email:                v.Contact.Email,
		Phone:                v.Contact.Phone,
		Website:              v.Contact.Website,
		Language:             v.Contact.Language(),
		HasActiveOpportunity: v.HasActiveOpportunity,
	}
}

func (v *Vendor) ContactSnapshot() ContactSnapshot {
	return ContactSnapshot{
		Email:        v.Contact.Email,
		Phone:        v.Contact.Phone,
		BusinessName: v.Contact.BusinessName,
	}
}
