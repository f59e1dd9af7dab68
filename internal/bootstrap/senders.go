package bootstrap

import (
	"Raksha/internal/domain"
	"Raksha/internal/fanout"
	"Raksha/internal/listeners"
	"Raksha/pkg/config"
	"Raksha/pkg/i18n"
	"Raksha/pkg/metrics"
	"Raksha/pkg/notification"

	"go.uber.org/zap"
)

// senders picks one dispatcher per channel. Gateways are wrapped in a
// breaker.
func senders(cfg config.SendersConfig, userName, lang string, tr *i18n.I18nSupport, m *metrics.Metrics, lg *zap.Logger) ([]fanout.Option, *notification.MailNotification) {
	var opts []fanout.Option

	switch {
	case cfg.SMS.Enabled():
		sms := notification.NewSMSGateway(cfg.SMS, nil)
		opts = append(opts, fanout.WithSender(domain.ChannelSMS, notification.NewBreakerSender("sms", sms, cfg.Breaker, m)))
	case cfg.DeepLinks:
		opts = append(opts, fanout.WithSender(domain.ChannelSMS, notification.NewDeepLinkSender(notification.LinkSMS, nil)))
	default:
		lg.Warn("no sms sender configured")
	}

	switch {
	case cfg.WhatsApp.Enabled():
		wa := notification.NewWhatsAppCloud(cfg.WhatsApp, nil)
		opts = append(opts, fanout.WithSender(domain.ChannelWhatsApp, notification.NewBreakerSender("whatsapp", wa, cfg.Breaker, m)))
	case cfg.DeepLinks:
		opts = append(opts, fanout.WithSender(domain.ChannelWhatsApp, notification.NewDeepLinkSender(notification.LinkWhatsApp, nil)))
	}

	var mail *notification.MailNotification
	if cfg.Mail.Enabled() {
		subject := func(string, string) string {
			return tr.T(lang, i18n.MsgAlertSubject, map[string]any{"Name": userName})
		}
		mail = notification.NewMailNotification(cfg.Mail, nil, subject)
		opts = append(opts, fanout.WithSender(domain.ChannelEmail, notification.NewBreakerSender("mail", mail, cfg.Breaker, m)))
	}
	return opts, mail
}

// guardianPusher returns nil when JPush is not configured so the listener
// sees a nil interface.
func guardianPusher(cfg notification.JPushConfig) listeners.Pusher {
	if !cfg.Enabled() {
		return nil
	}
	return notification.NewJPush(notification.NewJPushHTTP(cfg, nil))
}

func guardianMailer(mail *notification.MailNotification) listeners.Mailer {
	if mail == nil {
		return nil
	}
	return mail
}
