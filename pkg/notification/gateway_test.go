package notification

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	path string
	user string
	pass string
	auth string
	body []byte
}

func captureServer(t *testing.T, status int) (*httptest.Server, func() []capturedRequest) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []capturedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		user, pass, _ := r.BasicAuth()
		mu.Lock()
		reqs = append(reqs, capturedRequest{path: r.URL.Path, user: user, pass: pass, auth: r.Header.Get("Authorization"), body: body})
		mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"message":"rejected"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, func() []capturedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]capturedRequest(nil), reqs...)
	}
}

func TestSMSGatewayPostsForm(t *testing.T) {
	t.Parallel()

	srv, got := captureServer(t, http.StatusCreated)
	g := NewSMSGateway(SMSGatewayConfig{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "+15550001"}, srv.Client())

	require.NoError(t, g.Send(context.Background(), "98000 00001", "help"))
	reqs := got()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/Accounts/AC1/Messages.json", reqs[0].path)
	assert.Equal(t, "AC1", reqs[0].user)
	assert.Equal(t, "tok", reqs[0].pass)

	form, err := url.ParseQuery(string(reqs[0].body))
	require.NoError(t, err)
	assert.Equal(t, "+9800000001", form.Get("To"))
	assert.Equal(t, "help", form.Get("Body"))
}

func TestSMSGatewayRejected(t *testing.T) {
	t.Parallel()

	srv, _ := captureServer(t, http.StatusBadRequest)
	g := NewSMSGateway(SMSGatewayConfig{BaseURL: srv.URL, AccountSID: "AC1", AuthToken: "tok", From: "+1"}, srv.Client())
	err := g.Send(context.Background(), "+911", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Contains(t, err.Error(), "rejected")
}

func TestWhatsAppCloudPostsJSON(t *testing.T) {
	t.Parallel()

	srv, got := captureServer(t, http.StatusOK)
	w := NewWhatsAppCloud(WhatsAppConfig{BaseURL: srv.URL, PhoneNumberID: "123", Token: "secret"}, srv.Client())

	require.NoError(t, w.Send(context.Background(), "+91 98000 00001", "help"))
	reqs := got()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/123/messages", reqs[0].path)
	assert.Equal(t, "Bearer secret", reqs[0].auth)

	var msg whatsAppMessage
	require.NoError(t, json.Unmarshal(reqs[0].body, &msg))
	assert.Equal(t, "919800000001", msg.To)
	assert.Equal(t, "help", msg.Text.Body)
	assert.Equal(t, "whatsapp", msg.Product)
}

func TestJPushHTTP(t *testing.T) {
	t.Parallel()

	srv, got := captureServer(t, http.StatusOK)
	push := NewJPush(NewJPushHTTP(JPushConfig{AppKey: "k", MasterSecret: "s", Endpoint: srv.URL + "/v3/push"}, srv.Client()))

	require.NoError(t, push.PushToAlias(context.Background(), []string{"guardian-1"}, "Alert", "Asha needs help", map[string]any{"alertId": "a1"}))
	require.NoError(t, push.PushToAlias(context.Background(), nil, "Alert", "ignored", nil))

	reqs := got()
	require.Len(t, reqs, 1)
	assert.Equal(t, "k", reqs[0].user)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].body, &payload))
	assert.Equal(t, map[string]any{"alias": []any{"guardian-1"}}, payload["audience"])

	assert.Error(t, NewJPush(nil).PushToAlias(context.Background(), []string{"x"}, "", "", nil))
}

func TestConfigsEnabled(t *testing.T) {
	t.Parallel()

	assert.False(t, SMSGatewayConfig{}.Enabled())
	assert.True(t, WhatsAppConfig{PhoneNumberID: "1", Token: "t"}.Enabled())
	assert.True(t, MailConfig{Host: "smtp", From: "a@b"}.Enabled())
	assert.False(t, JPushConfig{AppKey: "k"}.Enabled())
}
