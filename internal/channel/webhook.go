package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"floorbot/internal/domain"
	"floorbot/internal/metrics"
)

const maxWebhookBody = 1 << 20 // 1MB

// WebhookConfig configures the inbound WhatsApp webhook.
type WebhookConfig struct {
	AppSecret   string
	VerifyToken string
	Bus         domain.MessageBus
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
}

// Webhook receives WhatsApp Cloud API callbacks and hands the messages to the bus.
type Webhook struct {
	appSecret   string
	verifyToken string
	bus         domain.MessageBus
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

func NewWebhook(cfg WebhookConfig) *Webhook {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Webhook{
		appSecret:   cfg.AppSecret,
		verifyToken: cfg.VerifyToken,
		bus:         cfg.Bus,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}
}

// Verify answers the subscription challenge sent when the webhook is registered.
func (w *Webhook) Verify(c echo.Context) error {
	mode := c.QueryParam("hub.mode")
	token := c.QueryParam("hub.verify_token")
	challenge := c.QueryParam("hub.challenge")

	if mode == "subscribe" && w.verifyToken != "" &&
		subtle.ConstantTimeCompare([]byte(token), []byte(w.verifyToken)) == 1 {
		w.logger.Info("whatsapp webhook verified")
		return c.String(http.StatusOK, html.EscapeString(challenge))
	}

	w.logger.Warn("whatsapp webhook verification failed", "mode", mode)
	w.metrics.Rejected("verify_token")
	return c.String(http.StatusForbidden, "Forbidden")
}

// Receive checks the signature, publishes every message in the callback and
// acknowledges. Once the signature is valid the answer is always 200 so the
// provider does not retry.
func (w *Webhook) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return c.String(http.StatusBadRequest, "Bad request")
	}

	if !VerifySignature(body, w.appSecret, c.Request().Header.Get("X-Hub-Signature-256")) {
		w.logger.Warn("whatsapp invalid signature", "remote", c.RealIP())
		w.metrics.Rejected("signature")
		return c.String(http.StatusForbidden, "Forbidden")
	}

	msgs, err := ParseWebhook(body)
	if err != nil {
		w.logger.Warn("whatsapp bad payload", "err", err)
		w.metrics.Rejected("payload")
		return c.JSON(http.StatusOK, map[string]string{"status": "received"})
	}

	for _, m := range msgs {
		w.logger.Info("whatsapp message received", "from", m.From, "type", m.Type, "id", m.MessageID)
		w.bus.Publish(m)
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "received"})
}

// VerifySignature checks an X-Hub-Signature-256 header against body. An empty
// secret never verifies.
func VerifySignature(body []byte, secret, signature string) bool {
	if secret == "" || !strings.HasPrefix(signature, "sha256=") {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// ParseWebhook flattens a callback into normalised inbound messages.
// Status-only callbacks yield no messages.
func ParseWebhook(body []byte) ([]domain.InboundMessage, error) {
	var payload waPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}

	var out []domain.InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				out = append(out, normalize(msg, change.Value.Contacts))
			}
		}
	}
	return out, nil
}

func normalize(msg waMessage, contacts []waContact) domain.InboundMessage {
	in := domain.InboundMessage{
		From:        msg.From,
		MessageID:   msg.ID,
		Type:        msg.Type,
		ContactName: contactName(msg.From, contacts),
	}
	if ts, err := strconv.ParseInt(msg.Timestamp, 10, 64); err == nil {
		in.Timestamp = time.Unix(ts, 0).UTC()
	}

	switch msg.Type {
	case "text":
		if msg.Text != nil {
			in.Text = msg.Text.Body
		}
	case "interactive":
		if i := msg.Interactive; i != nil {
			switch {
			case i.ButtonReply != nil:
				in.InteractiveID = i.ButtonReply.ID
				in.InteractiveTitle = i.ButtonReply.Title
			case i.ListReply != nil:
				in.InteractiveID = i.ListReply.ID
				in.InteractiveTitle = i.ListReply.Title
			}
		}
	case "button":
		if msg.Button != nil {
			in.InteractiveID = msg.Button.Payload
			in.InteractiveTitle = msg.Button.Text
			in.Text = msg.Button.Text
		}
	case "image", "document", "video", "audio":
		if m := msg.media(); m != nil {
			in.MediaID = m.ID
			in.MediaType = msg.Type
			in.MediaCaption = m.Caption
		}
	}
	return in
}

func contactName(from string, contacts []waContact) string {
	for _, c := range contacts {
		if c.WaID == from {
			return c.Profile.Name
		}
	}
	if len(contacts) > 0 {
		return contacts[0].Profile.Name
	}
	return ""
}

// --- WhatsApp webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []waContact       `json:"contacts"`
	Messages         []waMessage       `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type waContact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type waMessage struct {
	From        string                `json:"from"`
	ID          string                `json:"id"`
	Timestamp   string                `json:"timestamp"`
	Type        string                `json:"type"`
	Text        *waText               `json:"text,omitempty"`
	Interactive *waInboundInteractive `json:"interactive,omitempty"`
	Button      *waQuickReply         `json:"button,omitempty"`
	Image       *waMedia              `json:"image,omitempty"`
	Document    *waMedia              `json:"document,omitempty"`
	Video       *waMedia              `json:"video,omitempty"`
	Audio       *waMedia              `json:"audio,omitempty"`
}

func (m waMessage) media() *waMedia {
	switch m.Type {
	case "image":
		return m.Image
	case "document":
		return m.Document
	case "video":
		return m.Video
	case "audio":
		return m.Audio
	}
	return nil
}

type waText struct {
	Body string `json:"body"`
}

type waInboundInteractive struct {
	Type        string   `json:"type"`
	ButtonReply *waReply `json:"button_reply,omitempty"`
	ListReply   *waReply `json:"list_reply,omitempty"`
}

type waQuickReply struct {
	Payload string `json:"payload"`
	Text    string `json:"text"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}
