// Package chatbot implements the quote-intake conversation flow: a pure
// transition per step plus the Machine that persists and delivers its effects.
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"floorbot/internal/content"
	"floorbot/internal/domain"
	"floorbot/internal/metrics"
)

// Config wires the Machine's collaborators. Store and Sender are required.
type Config struct {
	Store    domain.ConversationStore
	Sender   domain.Sender
	Notifier domain.Notifier
	Catalog  *content.Catalog
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Now      func() time.Time
	NewID    func() string
}

// Machine advances one conversation per inbound message.
type Machine struct {
	store    domain.ConversationStore
	sender   domain.Sender
	notifier domain.Notifier
	tpl      *Templates
	logger   *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
	newID    func() string
}

func NewMachine(cfg Config) (*Machine, error) {
	if cfg.Store == nil {
		return nil, errors.New("chatbot: store is required")
	}
	if cfg.Sender == nil {
		return nil, errors.New("chatbot: sender is required")
	}
	m := &Machine{
		store:    cfg.Store,
		sender:   cfg.Sender,
		notifier: cfg.Notifier,
		tpl:      NewTemplates(cfg.Catalog),
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		now:      cfg.Now,
		newID:    cfg.NewID,
	}
	if m.notifier == nil {
		m.notifier = domain.NopNotifier{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.newID == nil {
		m.newID = uuid.NewString
	}
	return m, nil
}

// turn is everything a step needs to decide: the message, the loaded state
// and the normalised reply.
type turn struct {
	msg   domain.InboundMessage
	state domain.ConversationState
	name  string
	input string
}

// decision is the effect set of one transition. Applying it is Handle's job.
type decision struct {
	next    domain.ConversationState
	replies []domain.Payload
	status  domain.ConversationStatus
	quote   *domain.Quote
	notify  string
}

type stepFunc func(m *Machine, t turn) decision

var dispatch = map[domain.Step]stepFunc{
	domain.StepWelcome:          (*Machine).welcome,
	domain.StepMainMenu:         (*Machine).mainMenu,
	domain.StepQuoteProjectType: (*Machine).projectType,
	domain.StepQuoteRoomSize:    (*Machine).roomSize,
	domain.StepQuoteTimeline:    (*Machine).timeline,
	domain.StepQuoteBudget:      (*Machine).budget,
	domain.StepQuotePhotos:      (*Machine).photos,
	domain.StepQuoteContact:     (*Machine).contact,

	// Transient steps are left within the same event; a persisted one is
	// treated as the menu.
	domain.StepServiceInfo:  (*Machine).mainMenu,
	domain.StepPortfolio:    (*Machine).mainMenu,
	domain.StepFAQ:          (*Machine).mainMenu,
	domain.StepHumanHandoff: (*Machine).mainMenu,
}

// Handle processes one inbound message end to end. A returned error means
// the state was not committed and nothing was sent.
func (m *Machine) Handle(ctx context.Context, msg domain.InboundMessage) error {
	if msg.From == "" {
		return errors.New("inbound message has no sender")
	}
	now := m.now()
	at := msg.Timestamp
	if at.IsZero() {
		at = now
	}

	conv, err := m.store.UpsertConversation(ctx, msg.From, domain.ConversationPatch{
		Name:          msg.ContactName,
		LastMessageAt: at,
	})
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if err := m.store.AppendMessage(ctx, msg.From, inboundRecord(msg, at)); err != nil {
		if errors.Is(err, domain.ErrDuplicateMessage) {
			m.logger.Debug("duplicate message skipped", "phone", msg.From, "message_id", msg.MessageID)
			return nil
		}
		return fmt.Errorf("append inbound message: %w", err)
	}
	m.metrics.Inbound(msg.Type)

	current, err := m.store.GetState(ctx, msg.From)
	if err != nil {
		return fmt.Errorf("get state: %w", err)
	}
	state := domain.ConversationState{Step: domain.StepWelcome}
	if current != nil {
		state = *current
	}

	d := m.decide(turn{msg: msg, state: state, name: conv.Name, input: replyInput(msg)})

	if d.quote != nil {
		d.quote.CreatedAt = now
		d.quote.UpdatedAt = now
		switch err := m.store.CreateQuote(ctx, *d.quote); {
		case errors.Is(err, domain.ErrDuplicateQuote):
			// An earlier attempt stored the quote and then failed to commit state.
			m.logger.Info("quote already recorded", "phone", msg.From, "quote_id", d.quote.ID)
		case err != nil:
			return fmt.Errorf("create quote: %w", err)
		default:
			m.metrics.QuoteCreated()
			m.logger.Info("quote created", "phone", msg.From, "quote_id", d.quote.ID, "project_type", d.quote.ProjectType)
		}
	}

	d.next.UpdatedAt = now
	if err := m.store.PutState(ctx, msg.From, d.next); err != nil {
		return fmt.Errorf("put state: %w", err)
	}
	m.metrics.Transition(string(state.Step), string(d.next.Step))
	m.logger.Debug("transition", "phone", msg.From, "from", state.Step, "to", d.next.Step)

	if d.status != "" && d.status != conv.Status {
		if _, err := m.store.UpsertConversation(ctx, msg.From, domain.ConversationPatch{Status: d.status}); err != nil {
			m.logger.Error("update conversation status failed", "phone", msg.From, "status", d.status, "error", err)
		}
	}

	m.deliver(ctx, msg.From, d.replies)

	if d.notify != "" {
		if err := m.notifier.Notify(ctx, d.notify); err != nil {
			m.logger.Warn("operator notification failed", "phone", msg.From, "error", err)
		}
	}
	return nil
}

func (m *Machine) deliver(ctx context.Context, phone string, replies []domain.Payload) {
	for _, p := range replies {
		id, err := m.sender.Send(ctx, phone, p)
		if err != nil {
			m.metrics.SendFailed()
			m.logger.Warn("send failed", "phone", phone, "kind", p.Kind, "error", err)
			continue
		}
		rec := domain.Message{
			Phone:      phone,
			ProviderID: id,
			Direction:  domain.DirectionOutbound,
			Type:       string(p.Kind),
			Content:    p.Summary(),
			CreatedAt:  m.now(),
		}
		if err := m.store.AppendMessage(ctx, phone, rec); err != nil {
			m.logger.Error("append outbound message failed", "phone", phone, "provider_id", id, "error", err)
		}
	}
}

func (m *Machine) decide(t turn) decision {
	fn, ok := dispatch[t.state.Step]
	if !ok {
		m.logger.Warn("unknown step, restarting", "phone", t.msg.From, "step", t.state.Step)
		fn = (*Machine).welcome
	}
	return fn(m, t)
}

func (t turn) stay(replies ...domain.Payload) decision {
	return decision{next: t.state, replies: replies}
}

func (m *Machine) welcome(t turn) decision {
	return decision{
		next:    domain.ConversationState{Step: domain.StepMainMenu, Data: t.state.Data},
		replies: m.tpl.Welcome(),
	}
}

func (m *Machine) mainMenu(t turn) decision {
	menu := domain.ConversationState{Step: domain.StepMainMenu, Data: t.state.Data}
	in := strings.ToLower(t.input)
	switch {
	case wantsQuote(in):
		return decision{
			next:    domain.ConversationState{Step: domain.StepQuoteProjectType, Data: domain.CollectedData{QuoteID: m.newID()}},
			replies: []domain.Payload{m.tpl.ProjectTypeList(m.tpl.c.ProjectTypePrompt)},
		}
	case in == string(domain.ActionViewServices):
		return decision{next: menu, replies: m.tpl.Services()}
	case in == string(domain.ActionViewPortfolio):
		return decision{next: menu, replies: m.tpl.Portfolio()}
	case in == string(domain.ActionFAQ):
		return decision{next: menu, replies: m.tpl.FAQ()}
	case in == string(domain.ActionTalkHuman):
		return decision{
			next:    menu,
			replies: []domain.Payload{m.tpl.Handoff()},
			status:  domain.ConversationHandedOff,
			notify:  handoffNotice(t),
		}
	default:
		return decision{next: menu, replies: m.tpl.NotUnderstood()}
	}
}

func (m *Machine) projectType(t turn) decision {
	id, ok := matchProjectType(t.input)
	if !ok {
		return t.stay(m.tpl.ProjectTypeList(m.tpl.c.RetryOption))
	}
	data := t.state.Data.Clone()
	data.ProjectType = id
	return decision{
		next:    domain.ConversationState{Step: domain.StepQuoteRoomSize, Data: data},
		replies: []domain.Payload{m.tpl.Text(m.tpl.c.RoomSizePrompt)},
	}
}

func (m *Machine) roomSize(t turn) decision {
	size, ok := ParseRoomSize(t.msg.Text)
	if !ok {
		return t.stay(m.tpl.Text(m.tpl.c.RoomSizeRetry))
	}
	data := t.state.Data.Clone()
	data.RoomSize = size
	return decision{
		next:    domain.ConversationState{Step: domain.StepQuoteTimeline, Data: data},
		replies: []domain.Payload{m.tpl.TimelineList(m.tpl.c.TimelinePrompt)},
	}
}

func (m *Machine) timeline(t turn) decision {
	id, ok := matchTimeline(t.input)
	if !ok {
		return t.stay(m.tpl.TimelineList(m.tpl.c.RetryOption))
	}
	data := t.state.Data.Clone()
	data.Timeline = id
	return decision{
		next:    domain.ConversationState{Step: domain.StepQuoteBudget, Data: data},
		replies: []domain.Payload{m.tpl.BudgetList(m.tpl.c.BudgetPrompt)},
	}
}

func (m *Machine) budget(t turn) decision {
	id, ok := matchBudget(t.input)
	if !ok {
		return t.stay(m.tpl.BudgetList(m.tpl.c.RetryOption))
	}
	data := t.state.Data.Clone()
	data.Budget = id
	return decision{
		next:    domain.ConversationState{Step: domain.StepQuotePhotos, Data: data},
		replies: []domain.Payload{m.tpl.Text(m.tpl.c.PhotosPrompt)},
	}
}

func (m *Machine) photos(t turn) decision {
	switch {
	case t.msg.HasMedia():
		data := t.state.Data.Clone()
		data.Photos = append(data.Photos, t.msg.MediaID)
		return decision{
			next:    domain.ConversationState{Step: domain.StepQuotePhotos, Data: data},
			replies: []domain.Payload{m.tpl.Text(m.tpl.c.PhotoReceived)},
		}
	case isPhotoSkip(t.input):
		return decision{
			next:    domain.ConversationState{Step: domain.StepQuoteContact, Data: t.state.Data},
			replies: []domain.Payload{m.tpl.Text(m.tpl.c.NamePrompt)},
		}
	default:
		return t.stay(m.tpl.Text(m.tpl.c.PhotosRetry))
	}
}

func (m *Machine) contact(t turn) decision {
	text := strings.TrimSpace(t.msg.Text)
	data := t.state.Data.Clone()

	if data.Name == "" {
		if text == "" {
			return t.stay(m.tpl.Text(m.tpl.c.NamePrompt))
		}
		data.Name = text
		return decision{
			next:    domain.ConversationState{Step: domain.StepQuoteContact, Data: data},
			replies: []domain.Payload{m.tpl.Text(m.tpl.c.EmailPromptFor(text))},
		}
	}

	if !IsValidEmail(text) {
		return t.stay(m.tpl.Text(m.tpl.c.EmailRetry))
	}
	data.Email = text
	if data.QuoteID == "" {
		// State saved before pass ids existed.
		data.QuoteID = m.newID()
	}
	q := &domain.Quote{
		ID:          data.QuoteID,
		Name:        data.Name,
		Email:       data.Email,
		Phone:       t.msg.From,
		Description: QuoteDescription(data),
		ProjectType: data.ProjectType,
		RoomSize:    data.RoomSize,
		Timeline:    data.Timeline,
		Budget:      data.Budget,
		Photos:      data.Photos,
		Status:      domain.QuotePending,
	}
	return decision{
		next:    domain.ConversationState{Step: domain.StepMainMenu},
		replies: []domain.Payload{m.tpl.QuoteSummary(data)},
		status:  domain.ConversationCompleted,
		quote:   q,
		notify:  quoteNotice(q),
	}
}

// replyInput is the interactive reply id when present, else the trimmed text.
func replyInput(msg domain.InboundMessage) string {
	if msg.InteractiveID != "" {
		return strings.TrimSpace(msg.InteractiveID)
	}
	return strings.TrimSpace(msg.Text)
}

func inboundRecord(msg domain.InboundMessage, at time.Time) domain.Message {
	body := msg.Text
	switch {
	case msg.InteractiveID != "":
		body = fmt.Sprintf("[%s] %s", msg.InteractiveID, msg.InteractiveTitle)
	case msg.HasMedia():
		body = strings.TrimSpace(fmt.Sprintf("[%s] %s", msg.MediaType, msg.MediaCaption))
	case body == "" && msg.Type != "":
		body = "[" + msg.Type + "]"
	}
	return domain.Message{
		Phone:      msg.From,
		ProviderID: msg.MessageID,
		Direction:  domain.DirectionInbound,
		Type:       msg.Type,
		Content:    body,
		MediaID:    msg.MediaID,
		MediaType:  msg.MediaType,
		CreatedAt:  at,
	}
}

func displayName(t turn) string {
	if t.name != "" {
		return t.name
	}
	if t.msg.ContactName != "" {
		return t.msg.ContactName
	}
	return "-"
}

func handoffNotice(t turn) string {
	return fmt.Sprintf("🙋 Pedido de atendimento humano\nCliente: %s\nTelefone: %s", displayName(t), t.msg.From)
}

func quoteNotice(q *domain.Quote) string {
	return fmt.Sprintf("🧾 Novo orçamento\nCliente: %s\nTelefone: %s\nE-mail: %s\n\n%s",
		q.Name, q.Phone, q.Email, q.Description)
}
