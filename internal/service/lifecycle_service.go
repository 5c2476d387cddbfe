package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/queue"
	"github.com/unclebandit/vendor-outreach/internal/repository"
)

// LifecycleService persists vendor status transitions and publishes them on the change feed.
type LifecycleService struct {
	Vendors repository.VendorRepositoryInterface
	Audit   AuditSink
	Queue   queue.Queue
	Now     func() time.Time
}

func (s *LifecycleService) TransitionStatus(ctx context.Context, vendorID string, to model.VendorStatus) (*model.StatusChanged, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", appErrors.ErrInvalidStatus, to)
	}

	var from model.VendorStatus
	v, err := UpdateVendor(ctx, s.Vendors, vendorID, func(cur *model.Vendor) error {
		from = cur.Status
		cur.Status = to
		return nil
	})
	if err != nil {
		return nil, err
	}

	ev := &model.StatusChanged{VendorID: vendorID, From: from, To: v.Status, ChangedAt: v.UpdatedAt}
	if s.Now != nil {
		ev.ChangedAt = s.Now()
	}
	if from == to {
		return ev, nil
	}
	Record(ctx, s.Audit, vendorID, model.AuditStatusChanged,
		fmt.Sprintf("Status changed from %s to %s", from, to),
		map[string]any{"from": string(from), "to": string(to)})

	body, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	if err := s.Queue.Publish(ctx, queue.TopicVendorStatusChanges, body); err != nil {
		return ev, fmt.Errorf("publish status change for %s: %w", vendorID, err)
	}
	return ev, nil
}
