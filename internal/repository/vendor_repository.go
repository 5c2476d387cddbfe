package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
)

// VendorRepositoryInterface is the vendor store collaborator. Update is a
// conditional write: it only succeeds when v.Version still matches the stored row.
type VendorRepositoryInterface interface {
	GetByID(ctx context.Context, id string) (*model.Vendor, error)
	Update(ctx context.Context, v *model.Vendor) error
}

// VendorStore adds creation for the stores the CLI seeds.
type VendorStore interface {
	VendorRepositoryInterface
	Create(ctx context.Context, v *model.Vendor) error
}

type VendorRepository struct {
	DB *sql.DB
}

func (r *VendorRepository) GetByID(ctx context.Context, id string) (*model.Vendor, error) {
	query := `
        SELECT id, status, outreach_status, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(website, ''),
               business_name, capabilities, COALESCE(preferred_language, ''), has_active_opportunity,
               missing_fields, version, updated_at
        FROM vendors WHERE id=$1
    `
	var v model.Vendor
	err := r.DB.QueryRowContext(ctx, query, id).Scan(
		&v.ID, &v.Status, &v.OutreachStatus, &v.Contact.Email, &v.Contact.Phone, &v.Contact.Website,
		&v.Contact.BusinessName, pq.Array(&v.Contact.Capabilities), &v.Contact.PreferredLanguage,
		&v.HasActiveOpportunity, pq.Array(&v.MissingFields), &v.Version, &v.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewVendorNotFound(id)
		}
		return nil, err
	}
	return &v, nil
}

// Create inserts a vendor. An existing id is left untouched, so seeding is idempotent.
func (r *VendorRepository) Create(ctx context.Context, v *model.Vendor) error {
	if v.Status == "" {
		v.Status = model.VendorPendingReview
	}
	if v.OutreachStatus == "" {
		v.OutreachStatus = model.OutreachPending
	}
	query := `
        INSERT INTO vendors (id, status, outreach_status, email, phone, website, business_name, capabilities,
                             preferred_language, has_active_opportunity, missing_fields, version, updated_at)
        VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, NULLIF($9, ''), $10, $11, 0, $12)
        ON CONFLICT (id) DO NOTHING
    `
	_, err := r.DB.ExecContext(ctx, query,
		v.ID, v.Status, v.OutreachStatus, v.Contact.Email, v.Contact.Phone, v.Contact.Website,
		v.Contact.BusinessName, pq.Array(v.Contact.Capabilities), v.Contact.PreferredLanguage,
		v.HasActiveOpportunity, pq.Array(v.MissingFields), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("create vendor %s: %w", v.ID, err)
	}
	return nil
}

// Update writes the campaign fields and bumps the version. On success v.Version
// and v.UpdatedAt reflect the stored row.
func (r *VendorRepository) Update(ctx context.Context, v *model.Vendor) error {
	now := time.Now()
	query := `
        UPDATE vendors
        SET status=$1, outreach_status=$2, email=NULLIF($3, ''), phone=NULLIF($4, ''), website=NULLIF($5, ''),
            business_name=$6, capabilities=$7, preferred_language=NULLIF($8, ''), has_active_opportunity=$9,
            missing_fields=$10, version=version+1, updated_at=$11
        WHERE id=$12 AND version=$13
    `
	res, err := r.DB.ExecContext(ctx, query,
		v.Status, v.OutreachStatus, v.Contact.Email, v.Contact.Phone, v.Contact.Website,
		v.Contact.BusinessName, pq.Array(v.Contact.Capabilities), v.Contact.PreferredLanguage, v.HasActiveOpportunity,
		pq.Array(v.MissingFields), now, v.ID, v.Version,
	)
	if err != nil {
		return fmt.Errorf("update vendor %s: %w", v.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var exists bool
		if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM vendors WHERE id=$1)`, v.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return appErrors.NewVendorNotFound(v.ID)
		}
		return appErrors.ErrVersionConflict
	}
	v.Version++
	v.UpdatedAt = now
	return nil
}

var _ VendorStore = (*VendorRepository)(nil)
