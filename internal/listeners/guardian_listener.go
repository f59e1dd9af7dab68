package listeners

import (
	"context"
	"time"

	"Raksha/internal/events"
	"Raksha/internal/ports"
	"Raksha/pkg/i18n"
	"Raksha/pkg/logger"

	"go.uber.org/zap"
)

// Pusher is satisfied by *notification.JPush.
type Pusher interface {
	PushToAlias(ctx context.Context, alias []string, title, content string, extras map[string]any) error
}

// Mailer is satisfied by *notification.MailNotification.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, text, html string) error
}

type GuardianConfig struct {
	UserName string
	Lang     string
	Location *time.Location
	// Aliases are the guardians' companion app push aliases.
	Aliases []string
}

// GuardianListener pushes alert lifecycle events to guardians and tells
// contacts with an email address when an alert is resolved.
type GuardianListener struct {
	cfg      GuardianConfig
	i18n     *i18n.I18nSupport
	pusher   Pusher
	mailer   Mailer
	contacts ports.ContactDirectory
	userID   string
}

func NewGuardianListener(cfg GuardianConfig, tr *i18n.I18nSupport, pusher Pusher, mailer Mailer, contacts ports.ContactDirectory, userID string) *GuardianListener {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &GuardianListener{cfg: cfg, i18n: tr, pusher: pusher, mailer: mailer, contacts: contacts, userID: userID}
}

func InitGuardianListeners(ctx context.Context, bus *events.Bus, l *GuardianListener) error {
	if err := bus.Subscribe(ctx, events.TopicAlertTriggered, l.OnTriggered); err != nil {
		return err
	}
	return bus.Subscribe(ctx, events.TopicAlertResolved, l.OnResolved)
}

func (l *GuardianListener) data(ev events.AlertEvent) map[string]any {
	return map[string]any{
		"Name":     l.cfg.UserName,
		"Source":   string(ev.Alert.TriggerType),
		"Time":     ev.Alert.CreatedAt.In(l.cfg.Location).Format("15:04, 02 Jan"),
		"Location": ev.Alert.Location.String(),
		"By":       ev.By,
	}
}

// OnTriggered always acks; push failures are only logged.
func (l *GuardianListener) OnTriggered(ctx context.Context, _ string, ev events.AlertEvent) error {
	if l.pusher == nil || len(l.cfg.Aliases) == 0 {
		return nil
	}
	data := l.data(ev)
	title := l.i18n.T(l.cfg.Lang, i18n.MsgGuardianTitle, data)
	body := l.i18n.T(l.cfg.Lang, i18n.MsgGuardianBody, data)
	extras := map[string]any{"alertId": ev.Alert.ID, "event": events.TopicAlertTriggered}
	if lnk := ev.Alert.Location.MapsLink(); lnk != "" {
		extras["maps"] = lnk
	}
	if err := l.pusher.PushToAlias(ctx, l.cfg.Aliases, title, body, extras); err != nil {
		logger.Warn("guardian push failed", zap.String("alertId", ev.Alert.ID), zap.Error(err))
	}
	return nil
}

func (l *GuardianListener) OnResolved(ctx context.Context, _ string, ev events.AlertEvent) error {
	data := l.data(ev)
	text := l.i18n.T(l.cfg.Lang, i18n.MsgResolved, data)

	if l.pusher != nil && len(l.cfg.Aliases) > 0 {
		title := l.i18n.T(l.cfg.Lang, i18n.MsgResolvedSubj, data)
		extras := map[string]any{"alertId": ev.Alert.ID, "event": events.TopicAlertResolved}
		if err := l.pusher.PushToAlias(ctx, l.cfg.Aliases, title, text, extras); err != nil {
			logger.Warn("guardian push failed", zap.String("alertId", ev.Alert.ID), zap.Error(err))
		}
	}

	if l.mailer == nil || l.contacts == nil {
		return nil
	}
	contacts, err := l.contacts.ActiveContacts(ctx, l.userID)
	if err != nil {
		logger.Warn("load contacts for all-clear failed", zap.Error(err))
		return nil
	}
	subject := l.i18n.T(l.cfg.Lang, i18n.MsgResolvedSubj, data)
	for _, c := range contacts {
		if c.Email == "" {
			continue
		}
		if err := l.mailer.SendMail(ctx, c.Email, subject, text, ""); err != nil {
			logger.Warn("all-clear mail failed", zap.String("contact", c.ID), zap.Error(err))
		}
	}
	return nil
}
