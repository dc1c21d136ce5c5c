package channel

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"floorbot/internal/bus"
	"floorbot/internal/domain"
	"floorbot/internal/metrics"
)

const testAppSecret = "app-secret"

func testWebhookLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const textCallback = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "WABA",
    "changes": [{
      "field": "messages",
      "value": {
        "messaging_product": "whatsapp",
        "contacts": [{"wa_id": "5511988887777", "profile": {"name": "João"}}],
        "messages": [{
          "from": "5511988887777",
          "id": "wamid.TEXT",
          "timestamp": "1700000000",
          "type": "text",
          "text": {"body": "Quero um orçamento"}
        }]
      }
    }]
  }]
}`

func newTestWebhook() (*Webhook, *bus.InMemoryBus, *metrics.Metrics) {
	b := bus.New(10, testWebhookLogger())
	m := metrics.New()
	return NewWebhook(WebhookConfig{
		AppSecret:   testAppSecret,
		VerifyToken: "verify-me",
		Bus:         b,
		Logger:      testWebhookLogger(),
		Metrics:     m,
	}), b, m
}

func postCallback(t *testing.T, w *Webhook, body, signature string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	if signature != "" {
		req.Header.Set("X-Hub-Signature-256", signature)
	}
	rec := httptest.NewRecorder()
	require.NoError(t, w.Receive(e.NewContext(req, rec)))
	return rec
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"whatsapp_business_account"}`)
	sig := Sign(body, testAppSecret)

	require.True(t, VerifySignature(body, testAppSecret, sig))
	require.False(t, VerifySignature(body, "other", sig))
	require.False(t, VerifySignature(body, testAppSecret, "sha256=deadbeef"))
	require.False(t, VerifySignature(body, testAppSecret, ""))
	require.False(t, VerifySignature(body, testAppSecret, strings.TrimPrefix(sig, "sha256=")))
	require.False(t, VerifySignature(body, "", Sign(body, "")), "empty secret must fail closed")
}

func TestVerifyChallenge(t *testing.T) {
	w, _, _ := newTestWebhook()
	e := echo.New()

	req := httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, w.Verify(e.NewContext(req, rec)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "1158201444", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1", nil)
	rec = httptest.NewRecorder()
	require.NoError(t, w.Verify(e.NewContext(req, rec)))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestReceivePublishesSignedCallback(t *testing.T) {
	w, b, _ := newTestWebhook()

	rec := postCallback(t, w, textCallback, Sign([]byte(textCallback), testAppSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"received"}`, rec.Body.String())

	select {
	case msg := <-b.Subscribe():
		require.Equal(t, "5511988887777", msg.From)
		require.Equal(t, "wamid.TEXT", msg.MessageID)
		require.Equal(t, "Quero um orçamento", msg.Text)
		require.Equal(t, "João", msg.ContactName)
		require.Equal(t, time.Unix(1700000000, 0).UTC(), msg.Timestamp)
	default:
		t.Fatal("expected a published message")
	}
}

func TestReceiveRejectsBadSignature(t *testing.T) {
	w, b, m := newTestWebhook()

	rec := postCallback(t, w, textCallback, "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = postCallback(t, w, textCallback, Sign([]byte(textCallback), "not-the-secret"))
	require.Equal(t, http.StatusForbidden, rec.Code)

	require.Zero(t, b.Len())
	require.Equal(t, 2.0, testutil.ToFloat64(m.WebhookRejected.WithLabelValues("signature")))
}

func TestReceiveAcknowledgesUndecodableBody(t *testing.T) {
	w, b, _ := newTestWebhook()
	body := "not json"
	rec := postCallback(t, w, body, Sign([]byte(body), testAppSecret))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Zero(t, b.Len())
}

func TestParseWebhookMessageTypes(t *testing.T) {
	body := `{"entry":[{"changes":[{"value":{
	  "contacts":[{"wa_id":"551100","profile":{"name":"Ana"}}],
	  "messages":[
	    {"from":"551100","id":"w1","timestamp":"1","type":"interactive","interactive":{"type":"button_reply","button_reply":{"id":"request_quote","title":"Solicitar orçamento"}}},
	    {"from":"551100","id":"w2","timestamp":"2","type":"interactive","interactive":{"type":"list_reply","list_reply":{"id":"madeira","title":"Madeira maciça","description":"x"}}},
	    {"from":"551100","id":"w3","timestamp":"3","type":"button","button":{"payload":"talk_human","text":"Falar"}},
	    {"from":"551100","id":"w4","timestamp":"4","type":"image","image":{"id":"media-1","mime_type":"image/jpeg","caption":"sala"}},
	    {"from":"551100","id":"w5","timestamp":"5","type":"document","document":{"id":"media-2","mime_type":"application/pdf","filename":"planta.pdf"}},
	    {"from":"551100","id":"w6","timestamp":"6","type":"sticker","sticker":{"id":"s1"}}
	  ]}}]}]}`

	msgs, err := ParseWebhook([]byte(body))
	require.NoError(t, err)
	require.Len(t, msgs, 6)

	require.Equal(t, "request_quote", msgs[0].InteractiveID)
	require.Equal(t, "Solicitar orçamento", msgs[0].InteractiveTitle)
	require.Equal(t, "madeira", msgs[1].InteractiveID)
	require.Equal(t, "talk_human", msgs[2].InteractiveID)
	require.Equal(t, "media-1", msgs[3].MediaID)
	require.Equal(t, "image", msgs[3].MediaType)
	require.Equal(t, "sala", msgs[3].MediaCaption)
	require.Equal(t, "media-2", msgs[4].MediaID)
	require.Equal(t, "document", msgs[4].MediaType)

	require.Equal(t, domain.InboundMessage{
		From:        "551100",
		MessageID:   "w6",
		Timestamp:   time.Unix(6, 0).UTC(),
		Type:        "sticker",
		ContactName: "Ana",
	}, msgs[5])
}

func TestParseWebhookStatusOnly(t *testing.T) {
	body := `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.X","status":"delivered"}]}}]}]}`
	msgs, err := ParseWebhook([]byte(body))
	require.NoError(t, err)
	require.Empty(t, msgs)
}
