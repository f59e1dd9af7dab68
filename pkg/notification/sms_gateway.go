package notification

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SMSGatewayConfig targets a Twilio-compatible messages endpoint.
type SMSGatewayConfig struct {
	BaseURL    string `env:"SMS_GATEWAY_URL"`
	AccountSID string `env:"SMS_ACCOUNT_SID"`
	AuthToken  string `env:"SMS_AUTH_TOKEN"`
	From       string `env:"SMS_FROM"`
}

func (c SMSGatewayConfig) Enabled() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.From != ""
}

type SMSGateway struct {
	cfg    SMSGatewayConfig
	client *http.Client
}

func NewSMSGateway(cfg SMSGatewayConfig, client *http.Client) *SMSGateway {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.twilio.com/2010-04-01"
	}
	return &SMSGateway{cfg: cfg, client: defaultHTTPClient(client)}
}

func (g *SMSGateway) Send(ctx context.Context, address, text string) error {
	to := E164(address)
	if to == "" {
		return fmt.Errorf("invalid phone number %q", address)
	}
	form := url.Values{}
	form.Set("To", to)
	form.Set("From", g.cfg.From)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Messages.json", strings.TrimRight(g.cfg.BaseURL, "/"), url.PathEscape(g.cfg.AccountSID))
	req, err := http.NewRequest(http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(g.cfg.AccountSID, g.cfg.AuthToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return do(ctx, g.client, req)
}
