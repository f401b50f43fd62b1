// internal/service/template_service.go
package service

import (
	"regexp"
	"strings"

	"github.com/unclebandit/outreach-engine/internal/model"
)

var placeholderPattern = regexp.MustCompile(`\{[a-z][a-z0-9_]*\}`)

// RenderTemplate substitutes {key} placeholders from data in one pass over
// the template. Placeholders with no value are removed rather than sent to a
// contact verbatim. Substituted values are never expanded again.
func RenderTemplate(template string, data map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(placeholder string) string {
		return data[placeholder[1:len(placeholder)-1]]
	})
}

// Rendered is one message ready for a channel.
type Rendered struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func RenderMessage(tpl model.Template, data map[string]string) Rendered {
	return Rendered{
		Subject: strings.TrimSpace(RenderTemplate(tpl.Subject, data)),
		Body:    RenderTemplate(tpl.Body, data),
	}
}

// templateData merges entity attributes with the action links. Links win
// over attributes of the same name.
func templateData(e *model.Entity, links map[string]string) map[string]string {
	data := make(map[string]string, len(e.Attrs)+len(links)+2)
	for k, v := range e.Attrs {
		data[k] = v
	}
	if _, ok := data["category"]; !ok {
		data["category"] = e.Category
	}
	if _, ok := data["address"]; !ok {
		data["address"] = e.Address
	}
	for k, v := range links {
		data[k] = v
	}
	return data
}
