package templates

import (
	"embed"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var templatesFS embed.FS

var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Section is one block of a structured document template.
type Section struct {
	Type    string   `yaml:"type"`
	Title   string   `yaml:"title,omitempty"`
	Content string   `yaml:"content,omitempty"`
	Items   []string `yaml:"items,omitempty"`
}

// SummaryPrompt is the prompt template for the summarization call.
type SummaryPrompt struct {
	Template  string   `yaml:"template"`
	Variables []string `yaml:"variables"`
}

// PRTemplate describes the pull request title and body sections.
type PRTemplate struct {
	Title string    `yaml:"title"`
	Body  []Section `yaml:"body"`
}

// Render substitutes every {{name}} placeholder with vars[name]. Unknown
// placeholders resolve to the empty string so a missing optional variable
// never breaks rendering.
func Render(template string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		return vars[key]
	})
}

// RenderSections renders each section as a Markdown block, in section order:
// "## title", a content paragraph, then items as a bullet list.
func RenderSections(sections []Section, vars map[string]string) string {
	var b strings.Builder

	for _, section := range sections {
		if section.Title != "" {
			b.WriteString("## ")
			b.WriteString(Render(section.Title, vars))
			b.WriteString("\n\n")
		}

		if section.Content != "" {
			b.WriteString(Render(section.Content, vars))
			b.WriteString("\n\n")
		}

		for _, item := range section.Items {
			b.WriteString("- ")
			b.WriteString(Render(item, vars))
			b.WriteString("\n")
		}

		if len(section.Items) > 0 {
			b.WriteString("\n")
		}
	}

	return b.String()
}

// Load reads an embedded template by name. A missing template is a fatal
// configuration error for the caller, never retried.
func Load(name string, out any) error {
	raw, err := templatesFS.ReadFile("templates/" + name + ".yaml")
	if err != nil {
		return fmt.Errorf("read template %q: %w", name, err)
	}

	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("parse template %q: %w", name, err)
	}

	return nil
}

// LoadSummaryPrompt loads the summarization prompt template.
func LoadSummaryPrompt() (*SummaryPrompt, error) {
	var t SummaryPrompt
	if err := Load("summary_prompt", &t); err != nil {
		return nil, err
	}

	return &t, nil
}

// LoadPRTemplate loads the pull request document template.
func LoadPRTemplate() (*PRTemplate, error) {
	var t PRTemplate
	if err := Load("pr_template", &t); err != nil {
		return nil, err
	}

	return &t, nil
}
