package dailyidea

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var defaultTemplates []byte

// Template seeds the idea generated for a day.
type Template struct {
	Key         string `yaml:"key"`
	Title       string `yaml:"title"`
	OneLiner    string `yaml:"one_liner"`
	Description string `yaml:"description"`
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplates parses a templates document. Unknown keys are rejected and
// every template needs a unique key and a title.
func LoadTemplates(data []byte) ([]Template, error) {
	var file templateFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse idea templates: %w", err)
	}
	if len(file.Templates) == 0 {
		return nil, fmt.Errorf("idea templates: no templates defined")
	}

	seen := make(map[string]bool, len(file.Templates))
	for i, t := range file.Templates {
		if t.Key == "" {
			return nil, fmt.Errorf("idea template %d missing required field: key", i)
		}
		if t.Title == "" {
			return nil, fmt.Errorf("idea template %s missing required field: title", t.Key)
		}
		if seen[t.Key] {
			return nil, fmt.Errorf("duplicate idea template key: %s", t.Key)
		}
		seen[t.Key] = true
	}

	return file.Templates, nil
}

// DefaultTemplates returns the templates compiled into the binary.
func DefaultTemplates() ([]Template, error) {
	return LoadTemplates(defaultTemplates)
}

// TemplateFor picks the template for a date by day of month, so a given date
// always maps to the same template.
func TemplateFor(templates []Template, date time.Time) Template {
	return templates[date.Day()%len(templates)]
}
