package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// WhatsAppConfig targets the WhatsApp Business Cloud API.
type WhatsAppConfig struct {
	BaseURL       string `env:"WHATSAPP_API_URL"`
	PhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`
	Token         string `env:"WHATSAPP_TOKEN"`
}

func (c WhatsAppConfig) Enabled() bool {
	return c.PhoneNumberID != "" && c.Token != ""
}

type WhatsAppCloud struct {
	cfg    WhatsAppConfig
	client *http.Client
}

func NewWhatsAppCloud(cfg WhatsAppConfig, client *http.Client) *WhatsAppCloud {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com/v19.0"
	}
	return &WhatsAppCloud{cfg: cfg, client: defaultHTTPClient(client)}
}

type whatsAppText struct {
	Body       string `json:"body"`
	PreviewURL bool   `json:"preview_url"`
}

type whatsAppMessage struct {
	Product string       `json:"messaging_product"`
	To      string       `json:"to"`
	Type    string       `json:"type"`
	Text    whatsAppText `json:"text"`
}

func (w *WhatsAppCloud) Send(ctx context.Context, address, text string) error {
	to := Digits(address)
	if to == "" {
		return fmt.Errorf("invalid whatsapp number %q", address)
	}
	body, err := json.Marshal(whatsAppMessage{
		Product: "whatsapp",
		To:      to,
		Type:    "text",
		Text:    whatsAppText{Body: text, PreviewURL: true},
	})
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/%s/messages", strings.TrimRight(w.cfg.BaseURL, "/"), w.cfg.PhoneNumberID)
	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+w.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	return do(ctx, w.client, req)
}
