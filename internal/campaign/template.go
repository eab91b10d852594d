// Package campaign schedules outreach actions over contact batches,
// composing the workflow tables, channel adapters, and the rate gate.
package campaign

import (
	"strings"

	"github.com/leadon/outreach-cli/internal/model"
)

// defaultTemplate is used when no message template is configured.
const defaultTemplate = "Hi {first_name}, I came across your work at {company} and would love to connect."

// Personalize fills the message template's placeholders from the contact.
// Missing fields fall back to neutral phrasing so no message ever ships
// with a raw placeholder in it.
func Personalize(template string, contact model.Contact) string {
	if template == "" {
		template = defaultTemplate
	}

	first := firstName(contact.Name)
	if first == "" {
		first = "there"
	}
	company := strings.TrimSpace(contact.Company)
	if company == "" {
		company = "your company"
	}
	title := strings.TrimSpace(contact.Title)
	if title == "" {
		title = "your role"
	}

	return strings.NewReplacer(
		"{first_name}", first,
		"{company}", company,
		"{title}", title,
	).Replace(template)
}

func firstName(full string) string {
	fields := strings.Fields(full)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
