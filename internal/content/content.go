// Package content holds the static customer-facing texts of the bot.
// A Portuguese catalog is embedded; a YAML file can override any field.
package content

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Catalog is the set of texts the message templates are built from.
type Catalog struct {
	Company      string `yaml:"company"`
	ContactPhone string `yaml:"contactPhone"`
	ContactEmail string `yaml:"contactEmail"`
	Website      string `yaml:"website"`

	Welcome       string `yaml:"welcome"`
	MainMenu      string `yaml:"mainMenu"`
	SecondaryMenu string `yaml:"secondaryMenu"`
	NotUnderstood string `yaml:"notUnderstood"`

	Services  string `yaml:"services"`
	Portfolio string `yaml:"portfolio"`
	FAQ       string `yaml:"faq"`
	Handoff   string `yaml:"handoff"`

	ProjectTypePrompt string `yaml:"projectTypePrompt"`
	ProjectTypeButton string `yaml:"projectTypeButton"`
	RoomSizePrompt    string `yaml:"roomSizePrompt"`
	RoomSizeRetry     string `yaml:"roomSizeRetry"`
	TimelinePrompt    string `yaml:"timelinePrompt"`
	TimelineButton    string `yaml:"timelineButton"`
	BudgetPrompt      string `yaml:"budgetPrompt"`
	BudgetButton      string `yaml:"budgetButton"`
	RetryOption       string `yaml:"retryOption"`
	PhotosPrompt      string `yaml:"photosPrompt"`
	PhotoReceived     string `yaml:"photoReceived"`
	PhotosRetry       string `yaml:"photosRetry"`
	NamePrompt        string `yaml:"namePrompt"`
	EmailPrompt       string `yaml:"emailPrompt"`
	EmailRetry        string `yaml:"emailRetry"`
	QuoteHeader       string `yaml:"quoteHeader"`
	QuoteFooter       string `yaml:"quoteFooter"`
}

// Default returns the embedded catalog.
func Default() *Catalog {
	var c Catalog
	if err := yaml.Unmarshal(defaultYAML, &c); err != nil {
		panic(fmt.Sprintf("content: embedded catalog is invalid: %v", err))
	}
	return &c
}

// Load returns the embedded catalog with the fields present in path applied on top.
// An empty path returns the default catalog.
func Load(path string) (*Catalog, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read content file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse content file %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("content file %s: %w", path, err)
	}
	return c, nil
}

// Validate rejects catalogs with blank required texts.
func (c *Catalog) Validate() error {
	required := map[string]string{
		"welcome":           c.Welcome,
		"mainMenu":          c.MainMenu,
		"secondaryMenu":     c.SecondaryMenu,
		"notUnderstood":     c.NotUnderstood,
		"projectTypePrompt": c.ProjectTypePrompt,
		"projectTypeButton": c.ProjectTypeButton,
		"timelineButton":    c.TimelineButton,
		"budgetButton":      c.BudgetButton,
		"namePrompt":        c.NamePrompt,
		"emailPrompt":       c.EmailPrompt,
	}
	var missing []string
	for key, v := range required {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing texts: %s", strings.Join(missing, ", "))
	}
	return nil
}

// HandoffText renders the handoff message with the contact details filled in.
func (c *Catalog) HandoffText() string {
	r := strings.NewReplacer("{{phone}}", c.ContactPhone, "{{email}}", c.ContactEmail)
	return r.Replace(c.Handoff)
}

// EmailPromptFor renders the e-mail prompt addressed to name.
func (c *Catalog) EmailPromptFor(name string) string {
	first := name
	if fields := strings.Fields(name); len(fields) > 0 {
		first = fields[0]
	}
	return strings.ReplaceAll(c.EmailPrompt, "{{name}}", first)
}
