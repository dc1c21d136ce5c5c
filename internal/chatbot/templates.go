package chatbot

import (
	"fmt"
	"strconv"
	"strings"

	"floorbot/internal/content"
	"floorbot/internal/domain"
)

// Templates builds the outbound payloads from a content catalog.
type Templates struct {
	c *content.Catalog
}

func NewTemplates(c *content.Catalog) *Templates {
	if c == nil {
		c = content.Default()
	}
	return &Templates{c: c}
}

// Menu returns the two button messages of the main menu. A non-empty intro
// replaces the default body of the first one.
func (t *Templates) Menu(intro string) []domain.Payload {
	body := t.c.MainMenu
	if intro != "" {
		body = intro
	}
	return []domain.Payload{
		domain.ButtonPayload(body,
			domain.Button{ID: string(domain.ActionRequestQuote), Title: "Solicitar orçamento"},
			domain.Button{ID: string(domain.ActionViewServices), Title: "Nossos serviços"},
			domain.Button{ID: string(domain.ActionViewPortfolio), Title: "Ver portfólio"},
		),
		domain.ButtonPayload(t.c.SecondaryMenu,
			domain.Button{ID: string(domain.ActionTalkHuman), Title: "Falar com atendente"},
			domain.Button{ID: string(domain.ActionFAQ), Title: "Dúvidas frequentes"},
		),
	}
}

// WithMenu prefixes the menu with a plain text message.
func (t *Templates) WithMenu(text string) []domain.Payload {
	return append([]domain.Payload{domain.TextPayload(text)}, t.Menu("")...)
}

func (t *Templates) Welcome() []domain.Payload { return t.Menu(t.c.Welcome) }

func (t *Templates) NotUnderstood() []domain.Payload { return t.WithMenu(t.c.NotUnderstood) }

func (t *Templates) Services() []domain.Payload { return t.WithMenu(t.c.Services) }

func (t *Templates) Portfolio() []domain.Payload { return t.WithMenu(t.c.Portfolio) }

func (t *Templates) FAQ() []domain.Payload { return t.WithMenu(t.c.FAQ) }

func (t *Templates) Handoff() domain.Payload { return domain.TextPayload(t.c.HandoffText()) }

func (t *Templates) ProjectTypeList(body string) domain.Payload {
	rows := make([]domain.ListRow, 0, len(domain.ProjectTypes))
	for _, id := range domain.ProjectTypes {
		o := projectTypeOptions[id]
		rows = append(rows, domain.ListRow{ID: string(id), Title: o.title, Description: o.description})
	}
	return domain.ListPayload(body, t.c.ProjectTypeButton, domain.ListSection{Title: "Tipo de projeto", Rows: rows})
}

func (t *Templates) TimelineList(body string) domain.Payload {
	rows := make([]domain.ListRow, 0, len(domain.Timelines))
	for _, id := range domain.Timelines {
		o := timelineOptions[id]
		rows = append(rows, domain.ListRow{ID: string(id), Title: o.title, Description: o.description})
	}
	return domain.ListPayload(body, t.c.TimelineButton, domain.ListSection{Title: "Prazo", Rows: rows})
}

func (t *Templates) BudgetList(body string) domain.Payload {
	rows := make([]domain.ListRow, 0, len(domain.Budgets))
	for _, id := range domain.Budgets {
		o := budgetOptions[id]
		rows = append(rows, domain.ListRow{ID: string(id), Title: o.title, Description: o.description})
	}
	return domain.ListPayload(body, t.c.BudgetButton, domain.ListSection{Title: "Orçamento", Rows: rows})
}

func (t *Templates) Text(s string) domain.Payload { return domain.TextPayload(s) }

// QuoteDescription is the human-readable body stored on the quote record.
func QuoteDescription(d domain.CollectedData) string {
	lines := []string{
		"Tipo de projeto: " + orUnset(ProjectTypeDescription(d.ProjectType)),
		"Área: " + orUnset(RoomSizeDescription(d.RoomSize)),
		"Prazo: " + orUnset(TimelineDescription(d.Timeline)),
		"Orçamento: " + orUnset(BudgetDescription(d.Budget)),
		"Fotos: " + strconv.Itoa(len(d.Photos)),
	}
	return strings.Join(lines, "\n")
}

// QuoteSummary is the confirmation sent to the customer once the quote is saved.
func (t *Templates) QuoteSummary(d domain.CollectedData) domain.Payload {
	var b strings.Builder
	b.WriteString(t.c.QuoteHeader)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "*Nome:* %s\n", d.Name)
	fmt.Fprintf(&b, "*E-mail:* %s\n", d.Email)
	fmt.Fprintf(&b, "*Projeto:* %s\n", orUnset(ProjectTypeDescription(d.ProjectType)))
	fmt.Fprintf(&b, "*Área:* %s\n", orUnset(RoomSizeDescription(d.RoomSize)))
	fmt.Fprintf(&b, "*Prazo:* %s\n", orUnset(TimelineDescription(d.Timeline)))
	fmt.Fprintf(&b, "*Orçamento:* %s\n", orUnset(BudgetDescription(d.Budget)))
	fmt.Fprintf(&b, "*Fotos:* %d", len(d.Photos))
	if t.c.QuoteFooter != "" {
		b.WriteString("\n\n")
		b.WriteString(t.c.QuoteFooter)
	}
	return domain.TextPayload(b.String())
}

func orUnset(s string) string {
	if s == "" {
		return "não informado"
	}
	return s
}
