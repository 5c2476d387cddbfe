// Package transport delivers outbound email.
package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/unclebandit/vendor-outreach/internal/logger"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

const idempotencyHeader = "X-Outreach-Idempotency-Key"

type mailer interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPTransport sends plain-text mail through an SMTP relay.
type SMTPTransport struct {
	mailer mailer
	From   string
	Now    func() time.Time
}

func NewSMTPTransport(host string, port int, username, password, from string) *SMTPTransport {
	return &SMTPTransport{
		mailer: gomail.NewDialer(host, port, username, password),
		From:   from,
	}
}

// messageID derives a stable Message-ID from the idempotency key so a resend of
// the same task carries the same id.
func (t *SMTPTransport) messageID(key string) string {
	domain := "localhost"
	if at := strings.LastIndex(t.From, "@"); at >= 0 {
		domain = strings.TrimSuffix(t.From[at+1:], ">")
	}
	if key == "" {
		key = uuid.NewString()
	}
	return fmt.Sprintf("<%s@%s>", key, domain)
}

func (t *SMTPTransport) Send(ctx context.Context, msg service.OutboundEmail) (service.DeliveryReceipt, error) {
	if err := ctx.Err(); err != nil {
		return service.DeliveryReceipt{}, err
	}

	id := t.messageID(msg.IdempotencyKey)
	m := gomail.NewMessage()
	m.SetHeader("From", t.From)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", id)
	if msg.IdempotencyKey != "" {
		m.SetHeader(idempotencyHeader, msg.IdempotencyKey)
	}
	m.SetBody("text/plain", msg.Body)

	if err := t.mailer.DialAndSend(m); err != nil {
		return service.DeliveryReceipt{}, fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	now := time.Now
	if t.Now != nil {
		now = t.Now
	}
	return service.DeliveryReceipt{MessageID: id, AcceptedAt: now()}, nil
}

// LogTransport only logs what would have been sent. Used when no SMTP host is configured.
type LogTransport struct {
	Log *logrus.Logger
}

func (t LogTransport) Send(ctx context.Context, msg service.OutboundEmail) (service.DeliveryReceipt, error) {
	l := t.Log
	if l == nil {
		l = logger.GetAppLogger()
	}
	id := msg.IdempotencyKey
	if id == "" {
		id = uuid.NewString()
	}
	l.WithFields(logrus.Fields{
		"to":              msg.To,
		"subject":         msg.Subject,
		"idempotency_key": msg.IdempotencyKey,
	}).Info("email not sent: log transport")
	return service.DeliveryReceipt{MessageID: id, AcceptedAt: time.Now()}, nil
}

var (
	_ service.Transport = (*SMTPTransport)(nil)
	_ service.Transport = LogTransport{}
)
