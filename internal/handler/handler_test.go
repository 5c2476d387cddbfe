package handler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/vendor-outreach/internal/errors"
	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/repository"
	"github.com/unclebandit/vendor-outreach/internal/scheduler"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

var (
	mondayMorning = time.Date(2024, time.June, 3, 10, 0, 0, 0, time.UTC)
	fridayEvening = time.Date(2024, time.June, 7, 18, 0, 0, 0, time.UTC)
)

type fakeGenerator struct {
	err     error
	urgency model.Urgency
}

func (g *fakeGenerator) Draft(ctx context.Context, p model.ProfileSnapshot, ch model.Channel, u model.Urgency) (model.GeneratedContent, error) {
	g.urgency = u
	if g.err != nil {
		return model.GeneratedContent{}, g.err
	}
	return model.GeneratedContent{Channel: ch, Subject: "Hello " + p.BusinessName, Body: "Join us"}, nil
}

type fakeTransport struct {
	err  error
	sent []service.OutboundEmail
}

func (t *fakeTransport) Send(ctx context.Context, msg service.OutboundEmail) (service.DeliveryReceipt, error) {
	if t.err != nil {
		return service.DeliveryReceipt{}, t.err
	}
	t.sent = append(t.sent, msg)
	return service.DeliveryReceipt{MessageID: "msg-" + msg.IdempotencyKey, AcceptedAt: mondayMorning}, nil
}

type fakeCompleter struct {
	vendorIDs []string
	err       error
}

func (c *fakeCompleter) CompleteOutreach(ctx context.Context, vendorID string, sentAt time.Time) error {
	c.vendorIDs = append(c.vendorIDs, vendorID)
	return c.err
}

func generateTask(urgent bool) *model.QueueTask {
	return &model.QueueTask{
		ID:        "t-gen",
		SubjectID: "v1",
		Type:      model.TaskGenerate,
		Payload: model.GeneratePayload{
			Profile: model.ProfileSnapshot{VendorID: "v1", BusinessName: "Acme", HasActiveOpportunity: urgent},
			Channel: model.ChannelEmail,
		},
	}
}

func TestGenerateQueuesSendAtNextSlot(t *testing.T) {
	cases := []struct {
		name    string
		urgent  bool
		now     time.Time
		want    time.Time
		urgency model.Urgency
	}{
		{"urgent in hours", true, mondayMorning, mondayMorning.Add(10 * time.Minute), model.UrgencyUrgent},
		{"standard friday evening", false, fridayEvening, time.Date(2024, time.June, 10, 10, 0, 0, 0, time.UTC), model.UrgencyStandard},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			audit := repository.NewInMemoryAuditRepository()
			h := &GenerateHandler{Generator: gen, Audit: audit, Hours: scheduler.Default(), Now: func() time.Time { return tc.now }}

			out, err := h.Handle(context.Background(), generateTask(tc.urgent))
			require.NoError(t, err)
			assert.Equal(t, Completed, out.Kind)
			assert.Equal(t, tc.urgency, gen.urgency)
			require.Len(t, out.Enqueue, 1)

			send := out.Enqueue[0]
			assert.Equal(t, model.TaskSend, send.Type())
			assert.Equal(t, tc.want, send.ScheduledAt)
			assert.Equal(t, "send:v1", send.DedupeKey)
			p := send.Payload.(model.SendPayload)
			assert.Equal(t, "Hello Acme", p.Content.Subject)
			assert.Equal(t, tc.urgency, p.Urgency)
			assert.Equal(t, []string{model.AuditDraftGenerated}, audit.Types("v1"))
		})
	}
}

func TestGenerateFailureIsAnError(t *testing.T) {
	h := &GenerateHandler{Generator: &fakeGenerator{err: errors.New("quota")}, Hours: scheduler.Default()}
	out, err := h.Handle(context.Background(), generateTask(false))
	assert.Error(t, err)
	assert.Empty(t, out.Enqueue)
}

func TestWrongPayloadIsRejected(t *testing.T) {
	h := &GenerateHandler{Generator: &fakeGenerator{}}
	_, err := h.Handle(context.Background(), &model.QueueTask{ID: "x", Type: model.TaskGenerate, Payload: model.SendPayload{}})
	assert.ErrorIs(t, err, appErrors.ErrUnknownTaskType)
}

func TestGenerateSkipsVendorPastOutreach(t *testing.T) {
	gen := &fakeGenerator{}
	audit := repository.NewInMemoryAuditRepository()
	h := &GenerateHandler{
		Vendors:   repository.NewInMemoryVendorRepository(model.Vendor{ID: "v1", Status: model.VendorDismissed}),
		Generator: gen,
		Audit:     audit,
		Hours:     scheduler.Default(),
	}

	out, err := h.Handle(context.Background(), generateTask(false))
	require.NoError(t, err)
	assert.Equal(t, Skipped, out.Kind)
	assert.Empty(t, out.Enqueue)
	assert.Empty(t, gen.urgency, "generator must not be called")
	assert.Equal(t, []string{model.AuditOutreachSkipped}, audit.Types("v1"))
}

func sendTask() *model.QueueTask {
	return &model.QueueTask{
		ID:        "t-send",
		SubjectID: "v1",
		Type:      model.TaskSend,
		Payload: model.SendPayload{
			Content: model.GeneratedContent{Channel: model.ChannelEmail, Subject: "Hi", Body: "Body"},
			Urgency: model.UrgencyStandard,
		},
	}
}

func newSendHandler(vendors ...model.Vendor) (*SendHandler, *fakeTransport, *fakeCompleter, *repository.InMemoryAuditRepository) {
	tr := &fakeTransport{}
	done := &fakeCompleter{}
	audit := repository.NewInMemoryAuditRepository()
	return &SendHandler{
		Vendors:   repository.NewInMemoryVendorRepository(vendors...),
		Transport: tr,
		Audit:     audit,
		Outreach:  done,
		Now:       func() time.Time { return mondayMorning },
	}, tr, done, audit
}

func TestSendEmail(t *testing.T) {
	h, tr, done, audit := newSendHandler(model.Vendor{ID: "v1", Contact: model.Contact{Email: "a@acme.test"}})

	out, err := h.Handle(context.Background(), sendTask())
	require.NoError(t, err)
	assert.Equal(t, Completed, out.Kind)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "a@acme.test", tr.sent[0].To)
	assert.Equal(t, "t-send", tr.sent[0].IdempotencyKey)
	assert.Equal(t, []string{"v1"}, done.vendorIDs)
	assert.Equal(t, []string{model.AuditOutreachSent}, audit.Types("v1"))
}

func TestSendSkipsVendorPastOutreach(t *testing.T) {
	for _, status := range []model.VendorStatus{model.VendorDismissed, model.VendorComplianceReview} {
		t.Run(string(status), func(t *testing.T) {
			h, tr, done, audit := newSendHandler(model.Vendor{ID: "v1", Status: status, Contact: model.Contact{Email: "a@acme.test"}})

			out, err := h.Handle(context.Background(), sendTask())
			require.NoError(t, err)
			assert.Equal(t, Skipped, out.Kind)
			assert.Empty(t, tr.sent)
			assert.Empty(t, done.vendorIDs)
			assert.Equal(t, []string{model.AuditOutreachSkipped}, audit.Types("v1"))
		})
	}
}

func TestSendCompletesWhenFollowUpSchedulingFails(t *testing.T) {
	h, tr, done, audit := newSendHandler(model.Vendor{ID: "v1", Status: model.VendorQualified, Contact: model.Contact{Email: "a@acme.test"}})
	done.err = errors.New("store unavailable")

	out, err := h.Handle(context.Background(), sendTask())
	require.NoError(t, err)
	assert.Equal(t, Completed, out.Kind)
	assert.Len(t, tr.sent, 1)
	assert.Equal(t, []string{model.AuditOutreachSent, model.AuditFollowUpScheduleFailed}, audit.Types("v1"))
}

func TestSendTransportFailureLeavesOutreachPending(t *testing.T) {
	h, tr, done, _ := newSendHandler(model.Vendor{ID: "v1", OutreachStatus: model.OutreachPending, Contact: model.Contact{Email: "a@acme.test"}})
	tr.err = errors.New("smtp 421")

	_, err := h.Handle(context.Background(), sendTask())
	assert.Error(t, err)
	assert.Empty(t, done.vendorIDs)
	v, _ := h.Vendors.GetByID(context.Background(), "v1")
	assert.Equal(t, model.OutreachPending, v.OutreachStatus)
}

func TestSendPhoneOnlyIsDeferred(t *testing.T) {
	h, tr, done, audit := newSendHandler(model.Vendor{ID: "v1", Contact: model.Contact{Phone: "+15550100"}})

	out, err := h.Handle(context.Background(), sendTask())
	require.NoError(t, err)
	assert.Equal(t, SMSDeferred, out.Kind)
	assert.Empty(t, tr.sent)
	assert.Empty(t, done.vendorIDs)
	assert.Equal(t, []string{model.AuditSMSDeferred}, audit.Types("v1"))
}

func TestSendWithoutContactNeedsContact(t *testing.T) {
	h, tr, _, _ := newSendHandler(model.Vendor{ID: "v1"})

	out, err := h.Handle(context.Background(), sendTask())
	require.NoError(t, err)
	assert.Equal(t, Skipped, out.Kind)
	assert.Empty(t, tr.sent)
	v, _ := h.Vendors.GetByID(context.Background(), "v1")
	assert.Equal(t, model.OutreachNeedsContact, v.OutreachStatus)
}

func TestSendMissingVendorIsSkipped(t *testing.T) {
	h, tr, _, _ := newSendHandler()
	out, err := h.Handle(context.Background(), sendTask())
	require.NoError(t, err)
	assert.Equal(t, Skipped, out.Kind)
	assert.Empty(t, tr.sent)
}

func followUpTask(seq int, lang string) *model.QueueTask {
	return &model.QueueTask{
		ID:        "t-fu",
		SubjectID: "v1",
		Type:      model.TaskFollowUp,
		Payload:   model.FollowUpPayload{Sequence: seq, Language: lang, Contact: model.ContactSnapshot{BusinessName: "Acme"}},
	}
}

func TestFollowUpSkipsWithoutTransportCall(t *testing.T) {
	cases := map[string][]model.Vendor{
		"vendor moved on": {{ID: "v1", Status: model.VendorComplianceReview, Contact: model.Contact{Email: "a@acme.test"}}},
		"no email":        {{ID: "v1", Status: model.VendorAwaitingOnboarding}},
		"vendor missing":  nil,
	}
	for name, vendors := range cases {
		t.Run(name, func(t *testing.T) {
			tr := &fakeTransport{}
			h := &FollowUpHandler{Vendors: repository.NewInMemoryVendorRepository(vendors...), Transport: tr}

			out, err := h.Handle(context.Background(), followUpTask(1, "en"))
			require.NoError(t, err)
			assert.Equal(t, Skipped, out.Kind)
			assert.Empty(t, tr.sent)
		})
	}
}

func TestFollowUpSendsLocalizedCopy(t *testing.T) {
	tr := &fakeTransport{}
	audit := repository.NewInMemoryAuditRepository()
	h := &FollowUpHandler{
		Vendors: repository.NewInMemoryVendorRepository(model.Vendor{
			ID: "v1", Status: model.VendorAwaitingOnboarding,
			Contact: model.Contact{Email: "a@acme.test", BusinessName: "Acme"},
		}),
		Transport: tr,
		Audit:     audit,
		Copy:      DefaultCopybook(),
	}

	out, err := h.Handle(context.Background(), followUpTask(2, "es"))
	require.NoError(t, err)
	assert.Equal(t, Completed, out.Kind)
	require.Len(t, tr.sent, 1)
	assert.Equal(t, "¿Siguen interesados, Acme?", tr.sent[0].Subject)
	assert.True(t, strings.HasPrefix(tr.sent[0].Body, "Hola equipo de Acme"))
	assert.Equal(t, "t-fu", tr.sent[0].IdempotencyKey)
	assert.Equal(t, []string{model.AuditFollowUpSent}, audit.Types("v1"))
}

func TestFollowUpTransportFailureIsAnError(t *testing.T) {
	h := &FollowUpHandler{
		Vendors: repository.NewInMemoryVendorRepository(model.Vendor{
			ID: "v1", Status: model.VendorAwaitingOnboarding, Contact: model.Contact{Email: "a@acme.test"},
		}),
		Transport: &fakeTransport{err: errors.New("timeout")},
	}
	_, err := h.Handle(context.Background(), followUpTask(1, "en"))
	assert.Error(t, err)
}

func TestCopybookRender(t *testing.T) {
	cb := DefaultCopybook()
	for _, lang := range []string{"en", "es"} {
		require.Len(t, cb[lang], 4, lang)
	}

	m, err := cb.Render("fr", 4, map[string]string{"business_name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, "Last note from us, Acme", m.Subject)

	_, err = cb.Render("en", 5, nil)
	assert.Error(t, err)
	_, err = cb.Render("en", 0, nil)
	assert.Error(t, err)
}

func TestRegistry(t *testing.T) {
	r := Registry{model.TaskFollowUp: &FollowUpHandler{}}
	_, err := r.For(model.TaskFollowUp)
	assert.NoError(t, err)
	_, err = r.For(model.TaskSend)
	assert.ErrorIs(t, err, appErrors.ErrUnknownTaskType)
}
