package chatbot

import (
	"regexp"
	"strings"

	"floorbot/internal/domain"
)

type option struct {
	title       string
	description string
}

var projectTypeOptions = map[domain.ProjectType]option{
	domain.ProjectHardwood:    {"Madeira maciça", "Instalação de piso de madeira maciça"},
	domain.ProjectFinishing:   {"Acabamento", "Lixamento, acabamento e envernizamento"},
	domain.ProjectLaminate:    {"Piso laminado", "Instalação de piso laminado"},
	domain.ProjectVinyl:       {"Piso vinílico", "Instalação de piso vinílico"},
	domain.ProjectRefinishing: {"Reacabamento", "Renovação de piso de madeira existente"},
	domain.ProjectRepair:      {"Reparo", "Reparo e substituição de tábuas"},
	domain.ProjectMultiple:    {"Vários serviços", "Mais de um tipo de serviço"},
}

var timelineOptions = map[domain.Timeline]option{
	domain.TimelineASAP:     {"O quanto antes", "Início imediato"},
	domain.TimelineTwoWeeks: {"Em 1-2 semanas", "Início nas próximas duas semanas"},
	domain.TimelineOneMonth: {"Em até 1 mês", "Início dentro de um mês"},
	domain.TimelineQuarter:  {"Em 2-3 meses", "Início em dois a três meses"},
	domain.TimelinePlanning: {"Só planejando", "Ainda sem data definida"},
}

var budgetOptions = map[domain.Budget]option{
	domain.BudgetUnder15k:  {"Até R$ 15 mil", "Até R$ 15.000"},
	domain.Budget15kTo30k:  {"R$ 15 mil a R$ 30 mil", "Entre R$ 15.000 e R$ 30.000"},
	domain.Budget30kTo60k:  {"R$ 30 mil a R$ 60 mil", "Entre R$ 30.000 e R$ 60.000"},
	domain.Budget60kTo150k: {"R$ 60 mil a R$ 150 mil", "Entre R$ 60.000 e R$ 150.000"},
	domain.BudgetOver150k:  {"Acima de R$ 150 mil", "Acima de R$ 150.000"},
}

// ProjectTypeDescription maps a project-type id to its display text.
// Unknown ids are returned unchanged.
func ProjectTypeDescription(id domain.ProjectType) string {
	if o, ok := projectTypeOptions[id]; ok {
		return o.description
	}
	return string(id)
}

// TimelineDescription maps a timeline id to its display text.
// Unknown ids are returned unchanged.
func TimelineDescription(id domain.Timeline) string {
	if o, ok := timelineOptions[id]; ok {
		return o.title
	}
	return string(id)
}

// BudgetDescription maps a budget id to its display text.
// Unknown ids are returned unchanged.
func BudgetDescription(id domain.Budget) string {
	if o, ok := budgetOptions[id]; ok {
		return o.title
	}
	return string(id)
}

func matchProjectType(input string) (domain.ProjectType, bool) {
	for _, id := range domain.ProjectTypes {
		if strings.EqualFold(input, string(id)) {
			return id, true
		}
	}
	return "", false
}

func matchTimeline(input string) (domain.Timeline, bool) {
	for _, id := range domain.Timelines {
		if strings.EqualFold(input, string(id)) {
			return id, true
		}
	}
	return "", false
}

func matchBudget(input string) (domain.Budget, bool) {
	for _, id := range domain.Budgets {
		if strings.EqualFold(input, string(id)) {
			return id, true
		}
	}
	return "", false
}

var (
	roomSizeWithUnit = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*(?:m²|m2|metros)`)
	roomSizeBare     = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// ParseRoomSize extracts the area in square metres from free text.
// A number followed by a unit wins over the first bare number.
func ParseRoomSize(text string) (string, bool) {
	var n string
	if m := roomSizeWithUnit.FindStringSubmatch(text); m != nil {
		n = m[1]
	} else if m := roomSizeBare.FindString(text); m != "" {
		n = m
	} else {
		return "", false
	}
	return strings.ReplaceAll(n, ",", "."), true
}

// RoomSizeDescription renders a stored room size for display.
func RoomSizeDescription(size string) string {
	if size == "" {
		return ""
	}
	return size + " m²"
}

// IsValidEmail is the intake's e-mail check: an "@" and a "." somewhere.
func IsValidEmail(s string) bool {
	return strings.Contains(s, "@") && strings.Contains(s, ".")
}

var photoSkipWords = []string{"pular", "continuar", "proximo", "próximo"}

func isPhotoSkip(input string) bool {
	in := strings.ToLower(strings.TrimSpace(input))
	for _, w := range photoSkipWords {
		if in == w {
			return true
		}
	}
	return false
}

func wantsQuote(input string) bool {
	in := strings.ToLower(input)
	return in == string(domain.ActionRequestQuote) ||
		strings.Contains(in, "orçamento") ||
		strings.Contains(in, "orcamento")
}
