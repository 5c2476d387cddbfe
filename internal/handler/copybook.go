package handler

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/unclebandit/vendor-outreach/internal/service"
)

//go:embed copy.yaml
var defaultCopy []byte

type Message struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Copybook holds the follow-up messages per language, indexed by sequence-1.
type Copybook map[string][]Message

func LoadCopybook(raw []byte) (Copybook, error) {
	var cb Copybook
	if err := yaml.Unmarshal(raw, &cb); err != nil {
		return nil, fmt.Errorf("parse follow-up copy: %w", err)
	}
	if len(cb["en"]) == 0 {
		return nil, fmt.Errorf("follow-up copy has no english messages")
	}
	return cb, nil
}

// DefaultCopybook returns the copy compiled into the binary.
func DefaultCopybook() Copybook {
	cb, err := LoadCopybook(defaultCopy)
	if err != nil {
		panic(err)
	}
	return cb
}

// Render picks the message for lang and sequence, falling back to English.
func (c Copybook) Render(lang string, sequence int, data map[string]string) (Message, error) {
	msgs, ok := c[lang]
	if !ok || sequence > len(msgs) {
		msgs = c["en"]
	}
	if sequence < 1 || sequence > len(msgs) {
		return Message{}, fmt.Errorf("no follow-up copy for sequence %d", sequence)
	}
	m := msgs[sequence-1]
	return Message{
		Subject: service.RenderTemplate(m.Subject, data),
		Body:    service.RenderTemplate(m.Body, data),
	}, nil
}
