package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"floorbot/internal/domain"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "nested", "floorbot.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteUpsertConversation(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	c, err := s.UpsertConversation(ctx, "551100", domain.ConversationPatch{Name: "Ana", LastMessageAt: first})
	require.NoError(t, err)
	require.Equal(t, "551100", c.Phone)
	require.Equal(t, "Ana", c.Name)
	require.Equal(t, domain.ConversationActive, c.Status)
	require.True(t, first.Equal(c.LastMessageAt))

	// Name is kept once set; status and activity change only when given.
	later := first.Add(time.Hour)
	c, err = s.UpsertConversation(ctx, "551100", domain.ConversationPatch{Name: "Outra", LastMessageAt: later})
	require.NoError(t, err)
	require.Equal(t, "Ana", c.Name)
	require.True(t, later.Equal(c.LastMessageAt))

	c, err = s.UpsertConversation(ctx, "551100", domain.ConversationPatch{Status: domain.ConversationHandedOff})
	require.NoError(t, err)
	require.Equal(t, domain.ConversationHandedOff, c.Status)
	require.True(t, later.Equal(c.LastMessageAt))

	_, err = s.UpsertConversation(ctx, "551100", domain.ConversationPatch{Status: "PAUSED"})
	require.ErrorIs(t, err, domain.ErrInvalidStatus)
}

func TestSQLiteGetConversationNotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetConversation(context.Background(), "nope")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStateRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	_, err := s.UpsertConversation(ctx, "551100", domain.ConversationPatch{})
	require.NoError(t, err)

	st, err := s.GetState(ctx, "551100")
	require.NoError(t, err)
	require.Nil(t, st)

	want := domain.ConversationState{
		Step: domain.StepQuotePhotos,
		Data: domain.CollectedData{
			QuoteID:     "pass-7",
			ProjectType: domain.ProjectVinyl,
			RoomSize:    "30.5",
			Timeline:    domain.TimelineOneMonth,
			Budget:      domain.Budget30kTo60k,
			Photos:      []string{"m1", "m2"},
		},
	}
	require.NoError(t, s.PutState(ctx, "551100", want))

	got, err := s.GetState(ctx, "551100")
	require.NoError(t, err)
	require.Equal(t, want.Step, got.Step)
	require.Equal(t, want.Data, got.Data)
	require.False(t, got.UpdatedAt.IsZero())

	require.NoError(t, s.PutState(ctx, "551100", domain.ConversationState{Step: domain.StepMainMenu}))
	got, err = s.GetState(ctx, "551100")
	require.NoError(t, err)
	require.Equal(t, domain.StepMainMenu, got.Step)
	require.True(t, got.Data.IsEmpty())
}

func TestSQLiteAppendMessageDeduplicates(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	_, err := s.UpsertConversation(ctx, "551100", domain.ConversationPatch{})
	require.NoError(t, err)

	in := domain.Message{ProviderID: "wamid.1", Direction: domain.DirectionInbound, Type: "text", Content: "oi"}
	require.NoError(t, s.AppendMessage(ctx, "551100", in))
	require.ErrorIs(t, s.AppendMessage(ctx, "551100", in), domain.ErrDuplicateMessage)

	// Entries without a provider id are never deduplicated.
	blank := domain.Message{Direction: domain.DirectionOutbound, Type: "text", Content: "a"}
	require.NoError(t, s.AppendMessage(ctx, "551100", blank))
	require.NoError(t, s.AppendMessage(ctx, "551100", blank))

	msgs, err := s.ListMessages(ctx, "551100", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "wamid.1", msgs[0].ProviderID)
	require.Equal(t, domain.DirectionInbound, msgs[0].Direction)
}

func TestSQLiteListMessagesReturnsLatestInOrder(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	_, err := s.UpsertConversation(ctx, "551100", domain.ConversationPatch{})
	require.NoError(t, err)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, "551100", domain.Message{
			ProviderID: fmt.Sprintf("w%d", i), Direction: domain.DirectionInbound, Content: fmt.Sprintf("m%d", i),
		}))
	}

	msgs, err := s.ListMessages(ctx, "551100", 2)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "m4", msgs[0].Content)
	require.Equal(t, "m5", msgs[1].Content)
}

func seedQuote(t *testing.T, s *SQLiteStore, id string, pt domain.ProjectType, at time.Time) {
	t.Helper()
	require.NoError(t, s.CreateQuote(context.Background(), domain.Quote{
		ID:          id,
		Name:        "Cliente " + id,
		Email:       id + "@x.com",
		Phone:       "551100",
		Description: "Tipo de projeto: " + string(pt),
		ProjectType: pt,
		RoomSize:    "20",
		Timeline:    domain.TimelineASAP,
		Budget:      domain.BudgetUnder15k,
		Photos:      []string{"m-" + id},
		CreatedAt:   at,
	}))
}

func TestSQLiteCreateQuoteKeepsFirstWrite(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	seedQuote(t, s, "q1", domain.ProjectHardwood, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	err := s.CreateQuote(ctx, domain.Quote{ID: "q1", Name: "Outro", ProjectType: domain.ProjectRepair})
	require.ErrorIs(t, err, domain.ErrDuplicateQuote)

	q, err := s.GetQuote(ctx, "q1")
	require.NoError(t, err)
	require.Equal(t, "Cliente q1", q.Name)
	require.Equal(t, domain.ProjectHardwood, q.ProjectType)

	quotes, err := s.ListQuotes(ctx, domain.QuoteFilter{})
	require.NoError(t, err)
	require.Len(t, quotes, 1)
}

func TestSQLiteQuotes(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedQuote(t, s, "q1", domain.ProjectHardwood, base)
	seedQuote(t, s, "q2", domain.ProjectLaminate, base.Add(time.Minute))
	seedQuote(t, s, "q3", domain.ProjectHardwood, base.Add(2*time.Minute))

	q, err := s.GetQuote(ctx, "q2")
	require.NoError(t, err)
	require.Equal(t, domain.QuotePending, q.Status)
	require.Equal(t, []string{"m-q2"}, q.Photos)
	require.Equal(t, domain.ProjectLaminate, q.ProjectType)

	list, err := s.ListQuotes(ctx, domain.QuoteFilter{})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, "q3", list[0].ID)
	require.Equal(t, "q1", list[2].ID)

	require.NoError(t, s.UpdateQuoteStatus(ctx, "q1", domain.QuoteReviewed))
	require.ErrorIs(t, s.UpdateQuoteStatus(ctx, "missing", domain.QuoteReviewed), domain.ErrNotFound)
	require.ErrorIs(t, s.UpdateQuoteStatus(ctx, "q1", "LOST"), domain.ErrInvalidStatus)

	reviewed, err := s.ListQuotes(ctx, domain.QuoteFilter{Status: domain.QuoteReviewed})
	require.NoError(t, err)
	require.Len(t, reviewed, 1)
	require.Equal(t, "q1", reviewed[0].ID)

	limited, err := s.ListQuotes(ctx, domain.QuoteFilter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)

	_, err = s.GetQuote(ctx, "missing")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLiteStats(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	_, err := s.UpsertConversation(ctx, "a", domain.ConversationPatch{})
	require.NoError(t, err)
	_, err = s.UpsertConversation(ctx, "b", domain.ConversationPatch{Status: domain.ConversationCompleted})
	require.NoError(t, err)
	_, err = s.UpsertConversation(ctx, "c", domain.ConversationPatch{Status: domain.ConversationCompleted})
	require.NoError(t, err)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedQuote(t, s, "q1", domain.ProjectHardwood, base)
	seedQuote(t, s, "q2", domain.ProjectHardwood, base)
	seedQuote(t, s, "q3", domain.ProjectRepair, base)
	require.NoError(t, s.UpdateQuoteStatus(ctx, "q3", domain.QuoteAccepted))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, st.ConversationsByStatus[domain.ConversationActive])
	require.Equal(t, 2, st.ConversationsByStatus[domain.ConversationCompleted])
	require.Equal(t, 2, st.QuotesByStatus[domain.QuotePending])
	require.Equal(t, 1, st.QuotesByStatus[domain.QuoteAccepted])
	require.Equal(t, 2, st.QuotesByProjectType[domain.ProjectHardwood])
	require.Equal(t, 1, st.QuotesByProjectType[domain.ProjectRepair])
}

func TestSQLiteListConversationsByActivity(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, phone := range []string{"a", "b", "c"} {
		_, err := s.UpsertConversation(ctx, phone, domain.ConversationPatch{LastMessageAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}
	list, err := s.ListConversations(ctx, 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "c", list[0].Phone)
	require.Equal(t, "b", list[1].Phone)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "postgres"})
	require.Error(t, err)
	_, err = Open(context.Background(), Options{Driver: DriverDynamoDB, DynamoTable: "t"})
	require.Error(t, err)

	st, err := Open(context.Background(), Options{DBPath: filepath.Join(t.TempDir(), "x.db"), Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, st.Ping(context.Background()))
	require.NoError(t, st.Close())
}

func TestSQLiteSnapshot(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	_, err := s.UpsertConversation(ctx, "551100", domain.ConversationPatch{Name: "Ana"})
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "snap", "copy.db")
	require.NoError(t, s.Snapshot(ctx, dest))
	require.Error(t, s.Snapshot(ctx, dest))

	copyStore, err := NewSQLiteStore(ctx, dest, testLogger())
	require.NoError(t, err)
	defer copyStore.Close()
	c, err := copyStore.GetConversation(ctx, "551100")
	require.NoError(t, err)
	require.Equal(t, "Ana", c.Name)
}
