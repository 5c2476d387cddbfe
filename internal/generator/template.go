package generator

import (
	"context"
	"strings"

	"github.com/unclebandit/vendor-outreach/internal/model"
	"github.com/unclebandit/vendor-outreach/internal/service"
)

type draftTemplate struct {
	subject, body, urgentLine string
}

var templates = map[string]draftTemplate{
	"en": {
		subject:    "{business_name}, join our vendor network",
		body:       "Hi {business_name} team,\n\nWe connect event planners with great {capabilities} vendors and would love to have you on board.{urgent}\n\nSigning up takes a few minutes.",
		urgentLine: " We have a client looking for your services right now.",
	},
	"es": {
		subject:    "{business_name}, únase a nuestra red de proveedores",
		body:       "Hola equipo de {business_name}:\n\nConectamos organizadores de eventos con proveedores de {capabilities} y nos encantaría contar con ustedes.{urgent}\n\nEl registro toma unos minutos.",
		urgentLine: " Tenemos un cliente buscando sus servicios ahora mismo.",
	},
}

// TemplateGenerator fills fixed copy. It is used when no model is configured.
type TemplateGenerator struct{}

func (TemplateGenerator) Draft(ctx context.Context, p model.ProfileSnapshot, channel model.Channel, urgency model.Urgency) (model.GeneratedContent, error) {
	tpl, ok := templates[p.Language]
	if !ok {
		tpl = templates["en"]
	}
	urgent := ""
	if urgency == model.UrgencyUrgent {
		urgent = tpl.urgentLine
	}
	data := map[string]string{
		"business_name": p.BusinessName,
		"capabilities":  strings.Join(p.Capabilities, ", "),
		"urgent":        urgent,
	}

	out := model.GeneratedContent{
		Channel: channel,
		Subject: service.RenderTemplate(tpl.subject, data),
		Body:    service.RenderTemplate(tpl.body, data),
	}
	if channel == model.ChannelSMS {
		out.Subject = ""
	}
	return out, nil
}

var _ service.ContentGenerator = TemplateGenerator{}
