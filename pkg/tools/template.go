package tools

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Render expands {{ .key }} references in text with the run's extra variables. Text without
// template markers is returned unchanged.
func Render(text string, vars map[string]string) (string, error) {
	if !strings.Contains(text, "{{") {
		return text, nil
	}

	tmpl, err := template.New("field").
		Option("missingkey=error").
		Funcs(template.FuncMap{
			"default": func(def, val string) string {
				if val == "" {
					return def
				}
				return val
			},
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
		}).
		Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template %q: %w", text, err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", text, err)
	}
	return buf.String(), nil
}

// RenderAll renders every element of values.
func RenderAll(values []string, vars map[string]string) ([]string, error) {
	out := make([]string, len(values))
	for i, v := range values {
		rendered, err := Render(v, vars)
		if err != nil {
			return nil, err
		}
		out[i] = rendered
	}
	return out, nil
}

// RenderMap renders every value of m.
func RenderMap(m map[string]string, vars map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(m))
	for k, v := range m {
		rendered, err := Render(v, vars)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}
