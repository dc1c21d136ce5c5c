package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"floorbot/internal/bus"
	"floorbot/internal/channel"
	"floorbot/internal/domain"
	"floorbot/internal/metrics"
	"floorbot/internal/store"
)

const (
	adminUser = "admin"
	adminPass = "s3nha-forte"
	appSecret = "app-secret"
)

type testEnv struct {
	srv   *Server
	store *store.SQLiteStore
	bus   *bus.InMemoryBus
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestEnv(t *testing.T, adminEnabled bool) *testEnv {
	t.Helper()
	st, err := store.NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "floorbot.db"), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPass), bcrypt.MinCost)
	require.NoError(t, err)

	b := bus.New(10, quietLogger())
	m := metrics.New()
	srv, err := New(Config{
		Addr:        "127.0.0.1:0",
		WebhookPath: "/webhook/whatsapp",
		Webhook: channel.NewWebhook(channel.WebhookConfig{
			AppSecret:   appSecret,
			VerifyToken: "verify-me",
			Bus:         b,
			Logger:      quietLogger(),
			Metrics:     m,
		}),
		Store:       st,
		Admin:       AdminAuth{Enabled: adminEnabled, Username: adminUser, PasswordHash: string(hash)},
		Metrics:     m,
		MetricsPath: "/metrics",
		Logger:      quietLogger(),
		Version:     "test",
	})
	require.NoError(t, err)
	return &testEnv{srv: srv, store: st, bus: b}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) admin(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(adminUser, adminPass)
	return e.do(req)
}

func (e *testEnv) seedQuote(t *testing.T, id string, status domain.QuoteStatus, at time.Time) {
	t.Helper()
	require.NoError(t, e.store.CreateQuote(context.Background(), domain.Quote{
		ID: id, Name: "Ana", Email: "ana@x.com", Phone: "551100",
		ProjectType: domain.ProjectHardwood, Status: status, CreatedAt: at,
	}))
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestWebhookRoutes(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(httptest.NewRequest(http.MethodGet,
		"/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "12345", rec.Body.String())

	body := `{"object":"whatsapp_business_account","entry":[{"changes":[{"value":{"messages":[{"from":"551100","id":"wamid.1","timestamp":"1700000000","type":"text","text":{"body":"oi"}}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", channel.Sign([]byte(body), appSecret))
	rec = env.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"received"}`, rec.Body.String())
	require.Equal(t, 1, env.bus.Len())

	req = httptest.NewRequest(http.MethodPost, "/webhook/whatsapp", strings.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=00")
	require.Equal(t, http.StatusForbidden, env.do(req).Code)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, false)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = env.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")

	require.NoError(t, env.store.Close())
	rec = env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAdminDisabledIsNotMounted(t *testing.T) {
	env := newTestEnv(t, false)
	rec := env.admin(http.MethodGet, "/api/admin/quotes", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRequiresCredentials(t *testing.T) {
	env := newTestEnv(t, true)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Contains(t, strings.ToLower(rec.Header().Get("WWW-Authenticate")), `basic realm="floorbot"`)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.SetBasicAuth(adminUser, "wrong")
	require.Equal(t, http.StatusUnauthorized, env.do(req).Code)

	require.Equal(t, http.StatusOK, env.admin(http.MethodGet, "/api/admin/stats", "").Code)
}

func TestAdminQuotes(t *testing.T) {
	env := newTestEnv(t, true)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	env.seedQuote(t, "q-old", domain.QuotePending, base)
	env.seedQuote(t, "q-new", domain.QuotePending, base.Add(time.Hour))
	env.seedQuote(t, "q-sent", domain.QuoteSent, base.Add(2*time.Hour))

	var list struct {
		Quotes []domain.Quote `json:"quotes"`
		Count  int            `json:"count"`
	}
	rec := env.admin(http.MethodGet, "/api/admin/quotes?status=PENDING", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Equal(t, 2, list.Count)
	require.Equal(t, "q-new", list.Quotes[0].ID)

	require.Equal(t, http.StatusBadRequest, env.admin(http.MethodGet, "/api/admin/quotes?status=LOST", "").Code)
	require.Equal(t, http.StatusBadRequest, env.admin(http.MethodGet, "/api/admin/quotes?limit=abc", "").Code)

	rec = env.admin(http.MethodPatch, "/api/admin/quotes/q-old", `{"status":"REVIEWED"}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	q, err := env.store.GetQuote(context.Background(), "q-old")
	require.NoError(t, err)
	require.Equal(t, domain.QuoteReviewed, q.Status)

	require.Equal(t, http.StatusBadRequest, env.admin(http.MethodPatch, "/api/admin/quotes/q-old", `{"status":"LOST"}`).Code)
	require.Equal(t, http.StatusNotFound, env.admin(http.MethodPatch, "/api/admin/quotes/missing", `{"status":"SENT"}`).Code)

	rec = env.admin(http.MethodGet, "/api/admin/quotes/q-sent", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"SENT"`)
	require.Equal(t, http.StatusNotFound, env.admin(http.MethodGet, "/api/admin/quotes/missing", "").Code)
}

func TestAdminConversations(t *testing.T) {
	env := newTestEnv(t, true)
	ctx := context.Background()
	_, err := env.store.UpsertConversation(ctx, "551100", domain.ConversationPatch{Name: "Ana"})
	require.NoError(t, err)
	require.NoError(t, env.store.PutState(ctx, "551100", domain.ConversationState{Step: domain.StepQuoteBudget}))
	for i, content := range []string{"oi", "Olá!", "orçamento"} {
		dir := domain.DirectionInbound
		if i%2 == 1 {
			dir = domain.DirectionOutbound
		}
		require.NoError(t, env.store.AppendMessage(ctx, "551100", domain.Message{
			Direction: dir, Type: "text", Content: content,
			CreatedAt: time.Date(2026, 3, 1, 10, i, 0, 0, time.UTC),
		}))
	}

	rec := env.admin(http.MethodGet, "/api/admin/conversations", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"count":1`)

	rec = env.admin(http.MethodGet, "/api/admin/conversations/551100", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail struct {
		Conversation domain.Conversation      `json:"conversation"`
		State        domain.ConversationState `json:"state"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &detail))
	require.Equal(t, "Ana", detail.Conversation.Name)
	require.Equal(t, domain.StepQuoteBudget, detail.State.Step)

	require.Equal(t, http.StatusNotFound, env.admin(http.MethodGet, "/api/admin/conversations/000", "").Code)

	rec = env.admin(http.MethodGet, "/api/admin/conversations/551100/messages?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs struct {
		Messages []domain.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
	require.Len(t, msgs.Messages, 2)
	require.Equal(t, "Olá!", msgs.Messages[0].Content)
	require.Equal(t, "orçamento", msgs.Messages[1].Content)
}

func TestAdminStats(t *testing.T) {
	env := newTestEnv(t, true)
	env.seedQuote(t, "q1", domain.QuotePending, time.Now())

	rec := env.admin(http.MethodGet, "/api/admin/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st domain.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Equal(t, 1, st.QuotesByStatus[domain.QuotePending])
	require.Equal(t, 1, st.QuotesByProjectType[domain.ProjectHardwood])
}

func TestRunStopsOnCancel(t *testing.T) {
	env := newTestEnv(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- env.srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("segredo")
	require.NoError(t, err)
	a := AdminAuth{Username: "admin", PasswordHash: hash}
	require.True(t, a.check("admin", "segredo"))
	require.False(t, a.check("admin", "errado"))
	require.False(t, a.check("root", "segredo"))

	_, err = HashPassword("")
	require.Error(t, err)
}
