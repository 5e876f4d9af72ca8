// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package email

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html"
	"html/template"
	"strings"

	"codeberg.org/oliverandrich/go-accounts/internal/i18n"
	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.html
var templateFS embed.FS

// Template names an embedded email template.
type Template string

const (
	TemplateVerification    Template = "verification"
	TemplatePasswordReset   Template = "password_reset"
	TemplateWelcome         Template = "welcome"
	TemplatePasswordChanged Template = "password_changed"
)

var allTemplates = []Template{
	TemplateVerification,
	TemplatePasswordReset,
	TemplateWelcome,
	TemplatePasswordChanged,
}

// Data is passed to every template.
type Data struct {
	Subject     string
	Name        string
	Link        string
	ExpiryHours int
}

// Renderer turns templates into an HTML body and a plain-text alternative.
type Renderer struct {
	templates map[Template]*template.Template
	text      *bluemonday.Policy
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[Template]*template.Template, len(allTemplates)),
		text:      bluemonday.StrictPolicy().AddSpaceWhenStrippingTag(true).SkipElementsContent("title"),
	}

	// Real functions are bound per render, with the caller's locale.
	placeholders := localizedFuncs(context.Background())

	for _, name := range allTemplates {
		tmpl, err := template.New(string(name)).Funcs(placeholders).ParseFS(templateFS,
			"templates/layout.html", "templates/"+string(name)+".html")
		if err != nil {
			return nil, fmt.Errorf("parse email template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes name with data, localized for the locale in ctx.
func (r *Renderer) Render(ctx context.Context, name Template, data Data) (htmlBody, textBody string, err error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}

	clone, err := tmpl.Clone()
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := clone.Funcs(localizedFuncs(ctx)).ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", "", fmt.Errorf("render email template %s: %w", name, err)
	}

	htmlBody = buf.String()
	return htmlBody, r.plainText(htmlBody), nil
}

// plainText strips all markup and tidies the remaining whitespace.
func (r *Renderer) plainText(body string) string {
	stripped := html.UnescapeString(r.text.Sanitize(body))

	var lines []string
	blank := false
	for _, line := range strings.Split(stripped, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if !blank && len(lines) > 0 {
				lines = append(lines, "")
			}
			blank = true
			continue
		}
		lines = append(lines, line)
		blank = false
	}
	return strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
}

func localizedFuncs(ctx context.Context) template.FuncMap {
	return template.FuncMap{
		"t": func(id string) string {
			return i18n.T(ctx, id)
		},
		"td": func(id string, kv ...any) string {
			data := make(map[string]any, len(kv)/2)
			for i := 0; i+1 < len(kv); i += 2 {
				if key, ok := kv[i].(string); ok {
					data[key] = kv[i+1]
				}
			}
			return i18n.TData(ctx, id, data)
		},
		"expiry": func(hours int) string {
			if hours <= 0 {
				return ""
			}
			return i18n.TPlural(ctx, "email_link_expiry", hours)
		},
		"locale": func() string {
			return i18n.GetLocale(ctx)
		},
		"button": func(label, url string) map[string]string {
			return map[string]string{"Label": label, "URL": url}
		},
	}
}
