package models

import "regexp"

// templatePlaceholder matches {{name}} occurrences in template content.
// Extraction-only use of regexp (DESIGN.md: no pack library introspects
// template placeholders; text/template only executes).
var templatePlaceholder = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Template is a reusable message body with named variables (spec §3).
type Template struct {
	ID       string
	Name     string
	Category string
	Content  string
	ImageURL string
}

// Variables derives the set of {{name}} placeholders from Content.
func (t Template) Variables() []string {
	matches := templatePlaceholder.FindAllStringSubmatch(t.Content, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		name := m[1]
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// Render substitutes every {{name}} in Content from values. A missing key
// is left as the literal placeholder text.
func (t Template) Render(values map[string]string) string {
	return templatePlaceholder.ReplaceAllStringFunc(t.Content, func(match string) string {
		sub := templatePlaceholder.FindStringSubmatch(match)
		if sub == nil {
			return match
		}
		if v, ok := values[sub[1]]; ok {
			return v
		}
		return match
	})
}
