package content

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefault_IsValid(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Fatalf("embedded catalog invalid: %v", err)
	}
	if c.Company == "" {
		t.Error("expected company name")
	}
}

func TestLoad_EmptyPathReturnsDefault(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if c.Welcome != Default().Welcome {
		t.Error("expected default welcome text")
	}
}

func TestLoad_OverridesOnlyGivenFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	if err := os.WriteFile(path, []byte("company: Pisos Teste\nservices: Só instalação.\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Company != "Pisos Teste" {
		t.Errorf("expected overridden company, got %q", c.Company)
	}
	if c.Services != "Só instalação." {
		t.Errorf("expected overridden services, got %q", c.Services)
	}
	if c.FAQ != Default().FAQ {
		t.Error("fields absent from the override should keep the default")
	}
}

func TestLoad_BlankRequiredText(t *testing.T) {
	path := filepath.Join(t.TempDir(), "content.yaml")
	if err := os.WriteFile(path, []byte("mainMenu: \"\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "mainMenu") {
		t.Fatalf("expected mainMenu validation error, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestHandoffText(t *testing.T) {
	c := Default()
	c.ContactPhone = "+55 11 0000-0000"
	c.ContactEmail = "x@y.com"
	got := c.HandoffText()
	if !strings.Contains(got, "+55 11 0000-0000") || !strings.Contains(got, "x@y.com") {
		t.Fatalf("contact details not rendered: %q", got)
	}
	if strings.Contains(got, "{{") {
		t.Fatalf("unrendered placeholder: %q", got)
	}
}

func TestEmailPromptFor_UsesFirstName(t *testing.T) {
	c := Default()
	got := c.EmailPromptFor("João Silva")
	if !strings.Contains(got, "João") || strings.Contains(got, "Silva") {
		t.Fatalf("unexpected prompt: %q", got)
	}
}
