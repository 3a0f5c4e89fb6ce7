package agents_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/becomeliminal/nim-pipeline/agents"
)

func TestLoadTemplates_OverridesNonEmptyKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	src := "plan: |\n  Plan briefly: {{.Goal}}\nreview: \"\"\n"
	if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tmpl, err := agents.LoadTemplates(path)
	if err != nil {
		t.Fatalf("LoadTemplates: %v", err)
	}
	if !strings.HasPrefix(tmpl.Plan, "Plan briefly:") {
		t.Errorf("plan not overridden: %q", tmpl.Plan)
	}
	def := agents.DefaultTemplates()
	if tmpl.Review != def.Review || tmpl.Execute != def.Execute {
		t.Errorf("empty keys should keep defaults")
	}
}

func TestLoadTemplates_InvalidTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	if err := os.WriteFile(path, []byte("execute: \"{{.Instruction\"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := agents.LoadTemplates(path); err == nil {
		t.Fatal("expected parse error for malformed template")
	}
}

func TestLoadTemplates_MissingFile(t *testing.T) {
	if _, err := agents.LoadTemplates(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
