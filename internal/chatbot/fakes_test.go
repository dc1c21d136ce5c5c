package chatbot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"floorbot/internal/domain"
)

type memStore struct {
	mu       sync.Mutex
	convs    map[string]*domain.Conversation
	states   map[string]domain.ConversationState
	messages []domain.Message
	seen     map[string]bool
	quotes   []domain.Quote

	failUpsert error
	failAppend error
	failGet    error
	failPut    error
	failQuote  error
}

func newMemStore() *memStore {
	return &memStore{
		convs:  make(map[string]*domain.Conversation),
		states: make(map[string]domain.ConversationState),
		seen:   make(map[string]bool),
	}
}

func (s *memStore) UpsertConversation(_ context.Context, phone string, p domain.ConversationPatch) (*domain.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpsert != nil {
		return nil, s.failUpsert
	}
	c, ok := s.convs[phone]
	if !ok {
		c = &domain.Conversation{Phone: phone, Status: domain.ConversationActive}
		s.convs[phone] = c
	}
	if p.Name != "" && c.Name == "" {
		c.Name = p.Name
	}
	if p.Status != "" {
		c.Status = p.Status
	}
	if !p.LastMessageAt.IsZero() {
		c.LastMessageAt = p.LastMessageAt
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) GetState(_ context.Context, phone string) (*domain.ConversationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	st, ok := s.states[phone]
	if !ok {
		return nil, nil
	}
	st.Data = st.Data.Clone()
	return &st, nil
}

func (s *memStore) PutState(_ context.Context, phone string, st domain.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut != nil {
		return s.failPut
	}
	st.Data = st.Data.Clone()
	s.states[phone] = st
	return nil
}

func (s *memStore) AppendMessage(_ context.Context, phone string, m domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAppend != nil {
		return s.failAppend
	}
	if m.ProviderID != "" {
		if s.seen[m.ProviderID] {
			return domain.ErrDuplicateMessage
		}
		s.seen[m.ProviderID] = true
	}
	m.Phone = phone
	m.ID = int64(len(s.messages) + 1)
	s.messages = append(s.messages, m)
	return nil
}

func (s *memStore) CreateQuote(_ context.Context, q domain.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failQuote != nil {
		return s.failQuote
	}
	for _, existing := range s.quotes {
		if existing.ID == q.ID {
			return domain.ErrDuplicateQuote
		}
	}
	s.quotes = append(s.quotes, q)
	return nil
}

func (s *memStore) state(phone string) domain.ConversationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[phone]
}

func (s *memStore) conversation(phone string) domain.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.convs[phone]
}

func (s *memStore) byDirection(dir domain.MessageDirection) []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, m := range s.messages {
		if m.Direction == dir {
			out = append(out, m)
		}
	}
	return out
}

type sent struct {
	to      string
	payload domain.Payload
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	fail error
}

func (f *fakeSender) Send(_ context.Context, to string, p domain.Payload) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return "", f.fail
	}
	f.sent = append(f.sent, sent{to: to, payload: p})
	return fmt.Sprintf("wamid.out.%d", len(f.sent)), nil
}

func (f *fakeSender) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = nil
}

func (f *fakeSender) payloads() []domain.Payload {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Payload, 0, len(f.sent))
	for _, s := range f.sent {
		out = append(out, s.payload)
	}
	return out
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
	fail  bool
}

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.fail {
		return errors.New("telegram unavailable")
	}
	return nil
}
