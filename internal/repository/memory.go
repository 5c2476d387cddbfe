package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
)

// InMemoryTaskRepository keeps tasks in process memory. All operations are
// serialized by one mutex, so CancelBySubject is atomic per subject.
type InMemoryTaskRepository struct {
	mu    sync.Mutex
	tasks map[string]*model.QueueTask
	Now   func() time.Time
}

func NewInMemoryTaskRepository() *InMemoryTaskRepository {
	return &InMemoryTaskRepository{tasks: make(map[string]*model.QueueTask)}
}

func (r *InMemoryTaskRepository) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *InMemoryTaskRepository) Enqueue(ctx context.Context, task model.NewTask) (string, error) {
	if _, err := model.EncodePayload(task.Payload); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if task.DedupeKey != "" {
		for _, t := range r.tasks {
			if t.DedupeKey == task.DedupeKey && !t.Status.Terminal() {
				return t.ID, nil
			}
		}
	}

	now := r.now()
	t := &model.QueueTask{
		ID:          uuid.NewString(),
		SubjectID:   task.SubjectID,
		Type:        task.Type(),
		Status:      model.TaskPending,
		ScheduledAt: task.ScheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
		Payload:     task.Payload,
		DedupeKey:   task.DedupeKey,
	}
	r.tasks[t.ID] = t
	return t.ID, nil
}

func (r *InMemoryTaskRepository) FetchDue(ctx context.Context, now time.Time, limit int) ([]*model.QueueTask, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	due := []*model.QueueTask{}
	for _, t := range r.tasks {
		if t.Status.Schedulable() && !t.ScheduledAt.After(now) {
			c := *t
			due = append(due, &c)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].ScheduledAt.Equal(due[j].ScheduledAt) {
			return due[i].CreatedAt.Before(due[j].CreatedAt)
		}
		return due[i].ScheduledAt.Before(due[j].ScheduledAt)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (r *InMemoryTaskRepository) Claim(ctx context.Context, id, workerID string, now, leaseUntil time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok || !t.Status.Schedulable() || t.ScheduledAt.After(now) {
		return false, nil
	}
	lease := leaseUntil
	t.Status = model.TaskClaimed
	t.ClaimedBy = workerID
	t.LeaseExpiresAt = &lease
	t.UpdatedAt = now
	return true, nil
}

func (r *InMemoryTaskRepository) RequeueExpiredClaims(ctx context.Context, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, t := range r.tasks {
		if t.Status != model.TaskClaimed || t.LeaseExpiresAt == nil || !t.LeaseExpiresAt.Before(now) {
			continue
		}
		if t.RetryCount == 0 {
			t.Status = model.TaskPending
		} else {
			t.Status = model.TaskRetry
		}
		t.ClaimedBy = ""
		t.LeaseExpiresAt = nil
		t.UpdatedAt = now
		n++
	}
	return n, nil
}

func (r *InMemoryTaskRepository) UpdateStatus(ctx context.Context, id string, status model.TaskStatus, fields model.TaskUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return appErrors.NewTaskNotFound(id)
	}
	t.Status = status
	t.UpdatedAt = r.now()
	t.ClaimedBy = ""
	t.LeaseExpiresAt = nil
	if fields.RetryCount != nil {
		t.RetryCount = *fields.RetryCount
	}
	if fields.ScheduledAt != nil {
		t.ScheduledAt = *fields.ScheduledAt
	}
	if fields.Error != nil {
		t.Error = *fields.Error
	}
	return nil
}

func (r *InMemoryTaskRepository) CancelBySubject(ctx context.Context, subjectID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	now := r.now()
	for _, t := range r.tasks {
		if t.SubjectID == subjectID && t.Status.Schedulable() {
			t.Status = model.TaskCancelled
			t.UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (r *InMemoryTaskRepository) GetByID(ctx context.Context, id string) (*model.QueueTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, appErrors.NewTaskNotFound(id)
	}
	c := *t
	return &c, nil
}

func (r *InMemoryTaskRepository) ListBySubject(ctx context.Context, subjectID string) ([]*model.QueueTask, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []*model.QueueTask{}
	for _, t := range r.tasks {
		if t.SubjectID == subjectID {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ScheduledAt.Before(out[j].ScheduledAt)
	})
	return out, nil
}

var _ TaskRepositoryInterface = (*InMemoryTaskRepository)(nil)

// InMemoryVendorRepository mirrors the conditional-update semantics of VendorRepository.
type InMemoryVendorRepository struct {
	mu      sync.Mutex
	vendors map[string]model.Vendor
}

func NewInMemoryVendorRepository(vendors ...model.Vendor) *InMemoryVendorRepository {
	r := &InMemoryVendorRepository{vendors: make(map[string]model.Vendor)}
	for _, v := range vendors {
		r.vendors[v.ID] = cloneVendor(v)
	}
	return r
}

// Put inserts or replaces a vendor without a version check.
func (r *InMemoryVendorRepository) Put(v model.Vendor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vendors[v.ID] = cloneVendor(v)
}

// Create inserts v unless a vendor with the same id exists.
func (r *InMemoryVendorRepository) Create(ctx context.Context, v *model.Vendor) error {
	if v.Status == "" {
		v.Status = model.VendorPendingReview
	}
	if v.OutreachStatus == "" {
		v.OutreachStatus = model.OutreachPending
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vendors[v.ID]; ok {
		return nil
	}
	v.Version = 0
	v.UpdatedAt = time.Now()
	r.vendors[v.ID] = cloneVendor(*v)
	return nil
}

func (r *InMemoryVendorRepository) GetByID(ctx context.Context, id string) (*model.Vendor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.vendors[id]
	if !ok {
		return nil, appErrors.NewVendorNotFound(id)
	}
	c := cloneVendor(v)
	return &c, nil
}

func (r *InMemoryVendorRepository) Update(ctx context.Context, v *model.Vendor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.vendors[v.ID]
	if !ok {
		return appErrors.NewVendorNotFound(v.ID)
	}
	if stored.Version != v.Version {
		return appErrors.ErrVersionConflict
	}
	v.Version++
	v.UpdatedAt = time.Now()
	r.vendors[v.ID] = cloneVendor(*v)
	return nil
}

func cloneVendor(v model.Vendor) model.Vendor {
	c := v
	c.Contact.Capabilities = append([]string(nil), v.Contact.Capabilities...)
	c.MissingFields = append([]string(nil), v.MissingFields...)
	return c
}

var _ VendorStore = (*InMemoryVendorRepository)(nil)

// InMemoryAuditRepository collects audit entries in insertion order.
type InMemoryAuditRepository struct {
	mu      sync.Mutex
	entries []model.AuditEntry
}

func NewInMemoryAuditRepository() *InMemoryAuditRepository {
	return &InMemoryAuditRepository{}
}

func (r *InMemoryAuditRepository) Append(ctx context.Context, subjectID, entryType, description string, metadata map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, model.AuditEntry{
		ID:          int64(len(r.entries) + 1),
		SubjectID:   subjectID,
		Type:        entryType,
		Description: description,
		Metadata:    metadata,
		CreatedAt:   time.Now(),
	})
	return nil
}

func (r *InMemoryAuditRepository) ListBySubject(ctx context.Context, subjectID string) ([]model.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []model.AuditEntry{}
	for _, e := range r.entries {
		if e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

// Types returns the entry types recorded for a subject, in order.
func (r *InMemoryAuditRepository) Types(subjectID string) []string {
	entries, _ := r.ListBySubject(context.Background(), subjectID)
	types := make([]string, 0, len(entries))
	for _, e := range entries {
		types = append(types, e.Type)
	}
	return types
}
