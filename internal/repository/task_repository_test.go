package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/vendor-outreach/internal/db"
	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
)

// openTestDB connects to TEST_DATABASE_URL, skipping the test when it is unset.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	conn, err := db.Open(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx, conn))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTaskRepositoryLifecycle(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := &TaskRepository{DB: conn}
	subject := "vendor-" + uuid.NewString()
	now := time.Now().UTC().Truncate(time.Second)

	gen := model.NewTask{
		SubjectID:   subject,
		ScheduledAt: now.Add(-time.Minute),
		Payload: model.GeneratePayload{
			Profile: model.ProfileSnapshot{VendorID: subject, BusinessName: "Acme", Capabilities: []string{"catering"}},
			Channel: model.ChannelEmail,
		},
		DedupeKey: "generate:" + subject,
	}
	id, err := repo.Enqueue(ctx, gen)
	require.NoError(t, err)

	again, err := repo.Enqueue(ctx, gen)
	require.NoError(t, err)
	assert.Equal(t, id, again)

	task, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskGenerate, task.Type)
	assert.Equal(t, model.TaskPending, task.Status)
	payload, ok := task.Payload.(model.GeneratePayload)
	require.True(t, ok)
	assert.Equal(t, "Acme", payload.Profile.BusinessName)

	ok, err = repo.Claim(ctx, id, "w1", now, now.Add(-time.Second))
	require.NoError(t, err)
	require.True(t, ok)

	n, err := repo.RequeueExpiredClaims(ctx, now)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 1)

	retry := 1
	next := now.Add(2 * time.Minute)
	msg := "boom"
	require.NoError(t, repo.UpdateStatus(ctx, id, model.TaskRetry, model.TaskUpdate{
		RetryCount: &retry, ScheduledAt: &next, Error: &msg,
	}))
	task, err = repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.TaskRetry, task.Status)
	assert.Equal(t, 1, task.RetryCount)
	assert.Equal(t, "boom", task.Error)
	assert.Nil(t, task.LeaseExpiresAt)

	_, err = repo.Enqueue(ctx, model.NewTask{
		SubjectID:   subject,
		ScheduledAt: now.AddDate(0, 0, 3),
		Payload:     model.FollowUpPayload{Sequence: 1, Language: "en"},
	})
	require.NoError(t, err)

	cancelled, err := repo.CancelBySubject(ctx, subject)
	require.NoError(t, err)
	assert.Equal(t, 2, cancelled)

	tasks, err := repo.ListBySubject(ctx, subject)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	for _, tk := range tasks {
		assert.Equal(t, model.TaskCancelled, tk.Status)
	}

	err = repo.UpdateStatus(ctx, uuid.NewString(), model.TaskCompleted, model.TaskUpdate{})
	assert.True(t, appErrors.IsTaskNotFound(err))
}

func TestVendorRepositoryConditionalUpdate(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := &VendorRepository{DB: conn}
	id := "vendor-" + uuid.NewString()

	require.NoError(t, repo.Create(ctx, &model.Vendor{
		ID:     id,
		Status: model.VendorPendingReview,
		Contact: model.Contact{
			BusinessName: "Acme",
			Email:        "hi@acme.test",
			Capabilities: []string{"catering", "events"},
		},
	}))

	a, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	b, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"catering", "events"}, a.Contact.Capabilities)

	a.Status = model.VendorQualified
	require.NoError(t, repo.Update(ctx, a))

	b.Status = model.VendorDismissed
	assert.ErrorIs(t, repo.Update(ctx, b), appErrors.ErrVersionConflict)

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.VendorQualified, got.Status)
	assert.Equal(t, 1, got.Version)
}

func TestAuditRepositoryAppendAndList(t *testing.T) {
	conn := openTestDB(t)
	ctx := context.Background()
	repo := &AuditRepository{DB: conn}
	subject := "vendor-" + uuid.NewString()

	require.NoError(t, repo.Append(ctx, subject, model.AuditDraftGenerated, "draft ready", map[string]any{"channel": "email"}))
	require.NoError(t, repo.Append(ctx, subject, model.AuditOutreachSent, "sent", nil))

	entries, err := repo.ListBySubject(ctx, subject)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.AuditDraftGenerated, entries[0].Type)
	assert.Equal(t, "email", entries[0].Metadata["channel"])
	assert.Equal(t, model.AuditOutreachSent, entries[1].Type)
}
