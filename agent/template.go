package agent

import (
	"strings"
	"text/template"

	"github.com/m4xw311/steer/errors"
)

var templateFuncs = template.FuncMap{
	"sub": func(a, b int) int { return a - b },
	"tail": func(s string, n int) string {
		if n >= len(s) {
			return s
		}
		return s[len(s)-n:]
	},
}

// render executes a prompt template against data.
func render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", errors.Wrapf(err, "failed to parse %s template", name)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", errors.Wrapf(err, "failed to render %s template", name)
	}
	return b.String(), nil
}
