package domain

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// PayloadKind selects the outbound message shape.
type PayloadKind string

const (
	PayloadText   PayloadKind = "text"
	PayloadButton PayloadKind = "button"
	PayloadList   PayloadKind = "list"
)

// WhatsApp interactive message limits.
const (
	MaxButtons           = 3
	MaxButtonTitleLen    = 20
	MaxListRows          = 10
	MaxRowTitleLen       = 24
	MaxRowDescriptionLen = 72
	MaxListButtonLen     = 20
)

type Button struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ListRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type ListSection struct {
	Title string    `json:"title"`
	Rows  []ListRow `json:"rows"`
}

// Payload is an outbound message: plain text, a button message or a list menu.
type Payload struct {
	Kind        PayloadKind   `json:"kind"`
	Body        string        `json:"body"`
	Buttons     []Button      `json:"buttons,omitempty"`
	ButtonLabel string        `json:"button_label,omitempty"`
	Sections    []ListSection `json:"sections,omitempty"`
}

func TextPayload(body string) Payload {
	return Payload{Kind: PayloadText, Body: body}
}

func ButtonPayload(body string, buttons ...Button) Payload {
	return Payload{Kind: PayloadButton, Body: body, Buttons: buttons}
}

func ListPayload(body, label string, sections ...ListSection) Payload {
	return Payload{Kind: PayloadList, Body: body, ButtonLabel: label, Sections: sections}
}

// Summary renders the payload as the text stored in the message log.
func (p Payload) Summary() string {
	switch p.Kind {
	case PayloadButton:
		ids := make([]string, 0, len(p.Buttons))
		for _, b := range p.Buttons {
			ids = append(ids, b.ID)
		}
		return fmt.Sprintf("%s [buttons: %s]", p.Body, strings.Join(ids, ", "))
	case PayloadList:
		var ids []string
		for _, s := range p.Sections {
			for _, r := range s.Rows {
				ids = append(ids, r.ID)
			}
		}
		return fmt.Sprintf("%s [list: %s]", p.Body, strings.Join(ids, ", "))
	default:
		return p.Body
	}
}

// Validate checks the payload against the provider's interactive limits.
func (p Payload) Validate() error {
	if strings.TrimSpace(p.Body) == "" {
		return errors.New("payload body is required")
	}
	switch p.Kind {
	case PayloadText:
		return nil
	case PayloadButton:
		if len(p.Buttons) == 0 || len(p.Buttons) > MaxButtons {
			return fmt.Errorf("button message needs 1-%d buttons, got %d", MaxButtons, len(p.Buttons))
		}
		for _, b := range p.Buttons {
			if b.ID == "" {
				return errors.New("button id is required")
			}
			if n := utf8.RuneCountInString(b.Title); n == 0 || n > MaxButtonTitleLen {
				return fmt.Errorf("button %q title must be 1-%d characters", b.ID, MaxButtonTitleLen)
			}
		}
		return nil
	case PayloadList:
		if n := utf8.RuneCountInString(p.ButtonLabel); n == 0 || n > MaxListButtonLen {
			return fmt.Errorf("list button label must be 1-%d characters", MaxListButtonLen)
		}
		total := 0
		for _, s := range p.Sections {
			for _, r := range s.Rows {
				total++
				if r.ID == "" {
					return errors.New("list row id is required")
				}
				if n := utf8.RuneCountInString(r.Title); n == 0 || n > MaxRowTitleLen {
					return fmt.Errorf("list row %q title must be 1-%d characters", r.ID, MaxRowTitleLen)
				}
				if utf8.RuneCountInString(r.Description) > MaxRowDescriptionLen {
					return fmt.Errorf("list row %q description exceeds %d characters", r.ID, MaxRowDescriptionLen)
				}
			}
		}
		if total == 0 || total > MaxListRows {
			return fmt.Errorf("list message needs 1-%d rows, got %d", MaxListRows, total)
		}
		return nil
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
}
