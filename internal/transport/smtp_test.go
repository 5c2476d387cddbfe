package transport

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"

	"github.com/unclebandit/vendor-outreach/internal/service"
)

type captureMailer struct {
	err  error
	sent []*gomail.Message
}

func (c *captureMailer) DialAndSend(m ...*gomail.Message) error {
	if c.err != nil {
		return c.err
	}
	c.sent = append(c.sent, m...)
	return nil
}

func TestSMTPSendSetsHeaders(t *testing.T) {
	mail := &captureMailer{}
	at := time.Date(2024, time.June, 3, 10, 10, 0, 0, time.UTC)
	tr := &SMTPTransport{mailer: mail, From: "Partners <partners@outreach.test>", Now: func() time.Time { return at }}

	receipt, err := tr.Send(context.Background(), service.OutboundEmail{
		To: "owner@v1.test", Subject: "Hello", Body: "Join us", IdempotencyKey: "task-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "<task-1@outreach.test>", receipt.MessageID)
	assert.Equal(t, at, receipt.AcceptedAt)

	require.Len(t, mail.sent, 1)
	m := mail.sent[0]
	assert.Equal(t, []string{"owner@v1.test"}, m.GetHeader("To"))
	assert.Equal(t, []string{"<task-1@outreach.test>"}, m.GetHeader("Message-ID"))
	assert.Equal(t, []string{"task-1"}, m.GetHeader(idempotencyHeader))

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Join us")
}

func TestSMTPSendFailure(t *testing.T) {
	tr := &SMTPTransport{mailer: &captureMailer{err: errors.New("421 try later")}, From: "a@b.test"}
	_, err := tr.Send(context.Background(), service.OutboundEmail{To: "x@y.test", IdempotencyKey: "k"})
	assert.ErrorContains(t, err, "421")
}

func TestSMTPSendHonoursCancelledContext(t *testing.T) {
	mail := &captureMailer{}
	tr := &SMTPTransport{mailer: mail, From: "a@b.test"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := tr.Send(ctx, service.OutboundEmail{To: "x@y.test"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mail.sent)
}

func TestLogTransportEchoesKey(t *testing.T) {
	receipt, err := LogTransport{}.Send(context.Background(), service.OutboundEmail{To: "x@y.test", IdempotencyKey: "k-1"})
	require.NoError(t, err)
	assert.Equal(t, "k-1", receipt.MessageID)
}
