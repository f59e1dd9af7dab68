package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/goccy/go-json"
)

type JPushConfig struct {
	AppKey       string `env:"JPUSH_APP_KEY"`
	MasterSecret string `env:"JPUSH_MASTER_SECRET"`
	Endpoint     string `env:"JPUSH_ENDPOINT"`
}

func (c JPushConfig) Enabled() bool {
	return c.AppKey != "" && c.MasterSecret != ""
}

type JPushClient interface {
	Push(ctx context.Context, title, content string, audience map[string]any, extras map[string]any) error
}

// JPush pushes guardian notifications to the companion app.
type JPush struct {
	cli JPushClient
}

func NewJPush(cli JPushClient) *JPush { return &JPush{cli: cli} }

func (j *JPush) PushToAlias(ctx context.Context, alias []string, title, content string, extras map[string]any) error {
	if j.cli == nil {
		return fmt.Errorf("jpush client not configured")
	}
	if len(alias) == 0 {
		return nil
	}
	return j.cli.Push(ctx, title, content, map[string]any{"alias": alias}, extras)
}

// JPushHTTP calls the JPush v3 REST API.
type JPushHTTP struct {
	cfg    JPushConfig
	client *http.Client
}

func NewJPushHTTP(cfg JPushConfig, client *http.Client) *JPushHTTP {
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.jpush.cn/v3/push"
	}
	return &JPushHTTP{cfg: cfg, client: defaultHTTPClient(client)}
}

func (p *JPushHTTP) Push(ctx context.Context, title, content string, audience map[string]any, extras map[string]any) error {
	payload := map[string]any{
		"platform": "all",
		"audience": audience,
		"notification": map[string]any{
			"alert":   content,
			"android": map[string]any{"title": title, "alert": content, "priority": 2, "extras": extras},
			"ios":     map[string]any{"alert": map[string]any{"title": title, "body": content}, "sound": "default", "extras": extras},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, p.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.SetBasicAuth(p.cfg.AppKey, p.cfg.MasterSecret)
	req.Header.Set("Content-Type", "application/json")
	return do(ctx, p.client, req)
}
