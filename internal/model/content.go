// internal/model/content.go
package model

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

type Urgency string

const (
	UrgencyUrgent   Urgency = "URGENT"
	UrgencyStandard Urgency = "STANDARD"
)

// ProfileSnapshot is the vendor profile frozen into a GENERATE task.
type ProfileSnapshot struct {
	VendorID             string   `json:"vendor_id"`
	BusinessName         string   `json:"business_name"`
	Capabilities         []string `json:"capabilities"`
	Email                string   `json:"email,omitempty"`
	Phone                string   `json:"phone,omitempty"`
	Website              string   `json:"website,omitempty"`
	Language             string   `json:"language"`
	HasActiveOpportunity bool     `json:"has_active_opportunity"`
}

type ContactSnapshot struct {
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	BusinessName string `json:"business_name"`
}

type GeneratedContent struct {
	Channel Channel `json:"channel"`
	Subject string  `json:"subject,omitempty"`
	Body    string  `json:"body"`
}
