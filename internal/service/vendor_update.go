package service

import (
	"context"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/repository"
)

const maxUpdateAttempts = 5

// UpdateVendor re-reads the vendor, applies mutate and writes it back
// conditionally, starting over when another writer got there first.
func UpdateVendor(ctx context.Context, store repository.VendorRepositoryInterface, id string, mutate func(v *model.Vendor) error) (*model.Vendor, error) {
	for attempt := 1; ; attempt++ {
		v, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := mutate(v); err != nil {
			return nil, err
		}
		err = store.Update(ctx, v)
		if err == nil {
			return v, nil
		}
		if !errors.Is(err, appErrors.ErrVersionConflict) || attempt >= maxUpdateAttempts {
			return nil, fmt.Errorf("update vendor %s (attempt %d): %w", id, attempt, err)
		}
	}
}
