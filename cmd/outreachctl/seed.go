package main

import (
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/unclebandit/vendor-outreach/internal/model"
)

type seedFile struct {
	Vendors []seedVendor `yaml:"vendors"`
}

type seedVendor struct {
	ID                   string   `yaml:"id"`
	Status               string   `yaml:"status"`
	BusinessName         string   `yaml:"business_name"`
	Email                string   `yaml:"email"`
	Phone                string   `yaml:"phone"`
	Website              string   `yaml:"website"`
	Capabilities         []string `yaml:"capabilities"`
	PreferredLanguage    string   `yaml:"preferred_language"`
	HasActiveOpportunity bool     `yaml:"has_active_opportunity"`
}

func loadSeed(r io.Reader) ([]model.Vendor, error) {
	var f seedFile
	if err := yaml.NewDecoder(r).Decode(&f); err != nil {
		return nil, err
	}

	vendors := make([]model.Vendor, 0, len(f.Vendors))
	for i, sv := range f.Vendors {
		id := strings.TrimSpace(sv.ID)
		if id == "" {
			return nil, fmt.Errorf("vendor %d: id is required", i+1)
		}
		status := model.VendorStatus(sv.Status)
		if status == "" {
			status = model.VendorPendingReview
		}
		if !status.Valid() {
			return nil, fmt.Errorf("vendor %s: unknown status %q", id, sv.Status)
		}
		vendors = append(vendors, model.Vendor{
			ID:     id,
			Status: status,
			Contact: model.Contact{
				Email:             sv.Email,
				Phone:             sv.Phone,
				Website:           sv.Website,
				BusinessName:      sv.BusinessName,
				Capabilities:      sv.Capabilities,
				PreferredLanguage: sv.PreferredLanguage,
			},
			HasActiveOpportunity: sv.HasActiveOpportunity,
		})
	}
	return vendors, nil
}
