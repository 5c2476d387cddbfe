// Package generator drafts first-contact outreach copy.
package generator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

// GenAIGenerator drafts outreach with a Gemini model.
type GenAIGenerator struct {
	client *genai.Client
	model  string
	// complete is swapped out in tests.
	complete func(ctx context.Context, prompt string) (string, error)
}

func NewGenAIGenerator(ctx context.Context, apiKey, modelName string) (*GenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	g := &GenAIGenerator{client: client, model: modelName}
	g.complete = g.generate
	return g, nil
}

func (g *GenAIGenerator) generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return resp.Text(), nil
}

func (g *GenAIGenerator) Draft(ctx context.Context, p model.ProfileSnapshot, channel model.Channel, urgency model.Urgency) (model.GeneratedContent, error) {
	raw, err := g.complete(ctx, buildPrompt(p, channel, urgency))
	if err != nil {
		return model.GeneratedContent{}, err
	}
	return parseDraft(raw, channel)
}

func buildPrompt(p model.ProfileSnapshot, channel model.Channel, urgency model.Urgency) string {
	var sb strings.Builder
	sb.WriteString("You write short, friendly recruitment messages inviting event vendors to join a vendor network.\n")
	fmt.Fprintf(&sb, "Business name: %s\n", p.BusinessName)
	fmt.Fprintf(&sb, "Services: %s\n", strings.Join(p.Capabilities, ", "))
	if p.Website != "" {
		fmt.Fprintf(&sb, "Website: %s\n", p.Website)
	}
	if p.Language == "es" {
		sb.WriteString("Write in Spanish.\n")
	} else {
		sb.WriteString("Write in English.\n")
	}
	if urgency == model.UrgencyUrgent {
		sb.WriteString("A client is waiting on a vendor like them right now; mention that there is an open opportunity.\n")
	}
	if channel == model.ChannelSMS {
		sb.WriteString("This is an SMS: no subject, at most 300 characters.\n")
	}
	sb.WriteString(`Respond with JSON only: {"subject": string, "body": string}.`)
	return sb.String()
}

func parseDraft(raw string, channel model.Channel) (model.GeneratedContent, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var out struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &out); err != nil {
		return model.GeneratedContent{}, fmt.Errorf("decode draft: %w", err)
	}
	if strings.TrimSpace(out.Body) == "" {
		return model.GeneratedContent{}, fmt.Errorf("decode draft: empty body")
	}
	if channel == model.ChannelSMS {
		out.Subject = ""
	}
	return model.GeneratedContent{Channel: channel, Subject: out.Subject, Body: out.Body}, nil
}

var _ service.ContentGenerator = (*GenAIGenerator)(nil)
