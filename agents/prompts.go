package agents

import (
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/nim-pipeline/core"
)

// Templates holds the text/template source of each stage prompt.
type Templates struct {
	Plan    string `yaml:"plan"`
	Execute string `yaml:"execute"`
	Review  string `yaml:"review"`
}

// DefaultTemplates returns the built-in prompts. Each prompt's first line
// names the stage.
func DefaultTemplates() Templates {
	return Templates{
		Plan: "Plan steps to solve the goal:\n" +
			"Goal: {{.Goal}}\n" +
			"Context: {{entries .Context}}\n" +
			"{{with .Related}}{{.}}\n{{end}}" +
			"Provide numbered steps.",
		Execute: "Execute step: {{.Instruction}}\n" +
			"Memory: {{entries .Memory}}\n" +
			"Return an execution result summary.",
		Review: "Review these execution results and suggest corrections or improvements:\n" +
			"{{range .Results}}- {{.Instruction}}: {{.Result}}\n{{end}}",
	}
}

// LoadTemplates reads a YAML file of prompt overrides. Keys left empty keep
// their defaults.
func LoadTemplates(path string) (Templates, error) {
	t := DefaultTemplates()

	data, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("read templates: %w", err)
	}

	var override Templates
	if err := yaml.Unmarshal(data, &override); err != nil {
		return t, fmt.Errorf("parse templates %s: %w", path, err)
	}
	if strings.TrimSpace(override.Plan) != "" {
		t.Plan = override.Plan
	}
	if strings.TrimSpace(override.Execute) != "" {
		t.Execute = override.Execute
	}
	if strings.TrimSpace(override.Review) != "" {
		t.Review = override.Review
	}

	if _, err := t.Compile(); err != nil {
		return DefaultTemplates(), err
	}
	return t, nil
}

// Compiled is a parsed set of stage prompts.
type Compiled struct {
	Plan    *template.Template
	Execute *template.Template
	Review  *template.Template
}

// Compile parses all three templates.
func (t Templates) Compile() (*Compiled, error) {
	var c Compiled
	for _, p := range []struct {
		name string
		src  string
		dst  **template.Template
	}{
		{"plan", t.Plan, &c.Plan},
		{"execute", t.Execute, &c.Execute},
		{"review", t.Review, &c.Review},
	} {
		tmpl, err := template.New(p.name).Funcs(funcs).Parse(p.src)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", p.name, err)
		}
		*p.dst = tmpl
	}
	return &c, nil
}

// MustCompile is Compile for templates known to be valid.
func (t Templates) MustCompile() *Compiled {
	c, err := t.Compile()
	if err != nil {
		panic(err)
	}
	return c
}

var funcs = template.FuncMap{
	"entries": formatEntries,
}

// formatEntries renders memory entries on one line for prompt context.
func formatEntries(entries []core.MemoryEntry) string {
	if len(entries) == 0 {
		return "none"
	}
	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("[%s] %s", e.Role, e.Content)
	}
	return strings.Join(parts, " | ")
}

func render(t *template.Template, data interface{}) (string, error) {
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", t.Name(), err)
	}
	return b.String(), nil
}
