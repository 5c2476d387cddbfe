// internal/model/event.go
package model

import "time"

// StatusChanged is published on the change feed after a vendor status write.
type StatusChanged struct {
	VendorID  string       `json:"vendor_id"`
	From      VendorStatus `json:"from"`
	To        VendorStatus `json:"to"`
	ChangedAt time.Time    `json:"changed_at"`
}
