package fanout

import (
	"time"

	"Raksha/internal/domain"
	"Raksha/pkg/i18n"
)

// TemplateRenderer fills the localized alert template. Email gets the same
// body; the subject is rendered separately by the mail sender.
type TemplateRenderer struct {
	i18n *i18n.I18nSupport
	loc  *time.Location
}

func NewTemplateRenderer(s *i18n.I18nSupport, loc *time.Location) *TemplateRenderer {
	if loc == nil {
		loc = time.Local
	}
	return &TemplateRenderer{i18n: s, loc: loc}
}

func (r *TemplateRenderer) Render(c domain.Contact, _ domain.ChannelKind, m Message) (string, error) {
	return r.i18n.Localize(m.Lang, i18n.MsgAlert, TemplateData(c, m, r.loc))
}

// TemplateData exposes the placeholders Name, Contact, Location, MapsLink,
// Time and StreamLink.
func TemplateData(c domain.Contact, m Message, loc *time.Location) map[string]any {
	name := m.UserName
	if name == "" {
		name = "Your contact"
	}
	at := m.Alert.CreatedAt
	if at.IsZero() {
		at = time.Now()
	}
	return map[string]any{
		"Name":       name,
		"Contact":    c.Name,
		"Location":   m.Alert.Location.String(),
		"MapsLink":   m.Alert.Location.MapsLink(),
		"Time":       at.In(loc).Format("02 Jan 2006 15:04 MST"),
		"StreamLink": m.StreamLink,
	}
}
