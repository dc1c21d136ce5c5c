package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"floorbot/internal/domain"
)

const (
	defaultGraphAPIBase    = "https://graph.facebook.com"
	defaultGraphAPIVersion = "v21.0"
	defaultSendTimeout     = 30 * time.Second
)

// WhatsAppConfig configures the Cloud API client.
type WhatsAppConfig struct {
	APIBase       string
	APIVersion    string
	AccessToken   string
	PhoneNumberID string
	Timeout       time.Duration
	RatePerSecond float64 // <= 0 disables throttling
	Burst         int
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// WhatsApp sends messages through the WhatsApp Business Cloud API.
// It implements domain.Sender.
type WhatsApp struct {
	endpoint string
	token    string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.APIBase == "" {
		cfg.APIBase = defaultGraphAPIBase
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = defaultGraphAPIVersion
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSendTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	return &WhatsApp{
		endpoint: fmt.Sprintf("%s/%s/%s/messages", strings.TrimRight(cfg.APIBase, "/"), cfg.APIVersion, cfg.PhoneNumberID),
		token:    cfg.AccessToken,
		client:   cfg.HTTPClient,
		limiter:  limiter,
		logger:   cfg.Logger,
	}
}

// APIError is a non-2xx answer from the Graph API.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("whatsapp api %d (code %d): %s", e.Status, e.Code, e.Message)
}

// Send delivers p to the given phone and returns the provider message id.
func (w *WhatsApp) Send(ctx context.Context, to string, p domain.Payload) (string, error) {
	if err := p.Validate(); err != nil {
		return "", fmt.Errorf("invalid payload: %w", err)
	}
	body, err := json.Marshal(outboundMessage(to, p))
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	if err := w.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+w.token)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", parseAPIError(resp.StatusCode, respBody)
	}

	var out waSendResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Messages) == 0 || out.Messages[0].ID == "" {
		return "", errors.New("whatsapp api response has no message id")
	}
	w.logger.Debug("whatsapp message sent", "to", to, "kind", p.Kind, "id", out.Messages[0].ID)
	return out.Messages[0].ID, nil
}

func parseAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status, Message: strings.TrimSpace(string(body))}
	var env waErrorEnvelope
	if json.Unmarshal(body, &env) == nil && env.Error.Message != "" {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(status)
	}
	return apiErr
}

func outboundMessage(to string, p domain.Payload) waOutbound {
	msg := waOutbound{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               to,
	}
	switch p.Kind {
	case domain.PayloadButton:
		buttons := make([]waReplyButton, 0, len(p.Buttons))
		for _, b := range p.Buttons {
			buttons = append(buttons, waReplyButton{Type: "reply", Reply: waReply{ID: b.ID, Title: b.Title}})
		}
		msg.Type = "interactive"
		msg.Interactive = &waInteractive{
			Type:   "button",
			Body:   waBody{Text: p.Body},
			Action: waAction{Buttons: buttons},
		}
	case domain.PayloadList:
		sections := make([]waSection, 0, len(p.Sections))
		for _, s := range p.Sections {
			rows := make([]waRow, 0, len(s.Rows))
			for _, r := range s.Rows {
				rows = append(rows, waRow{ID: r.ID, Title: r.Title, Description: r.Description})
			}
			sections = append(sections, waSection{Title: s.Title, Rows: rows})
		}
		msg.Type = "interactive"
		msg.Interactive = &waInteractive{
			Type:   "list",
			Body:   waBody{Text: p.Body},
			Action: waAction{Button: p.ButtonLabel, Sections: sections},
		}
	default:
		msg.Type = "text"
		msg.Text = &waText{Body: p.Body}
	}
	return msg
}

// --- Graph API send payload types ---

type waOutbound struct {
	MessagingProduct string         `json:"messaging_product"`
	RecipientType    string         `json:"recipient_type"`
	To               string         `json:"to"`
	Type             string         `json:"type"`
	Text             *waText        `json:"text,omitempty"`
	Interactive      *waInteractive `json:"interactive,omitempty"`
}

type waInteractive struct {
	Type   string   `json:"type"`
	Body   waBody   `json:"body"`
	Action waAction `json:"action"`
}

type waBody struct {
	Text string `json:"text"`
}

type waAction struct {
	Button   string          `json:"button,omitempty"`
	Buttons  []waReplyButton `json:"buttons,omitempty"`
	Sections []waSection     `json:"sections,omitempty"`
}

type waReplyButton struct {
	Type  string  `json:"type"`
	Reply waReply `json:"reply"`
}

type waReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type waSection struct {
	Title string  `json:"title,omitempty"`
	Rows  []waRow `json:"rows"`
}

type waRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type waSendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

type waErrorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}
