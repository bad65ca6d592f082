package service

import (
	"strings"

	"github.com/driftline/outreach-backend/internal/model"
)

// RenderTemplate substitutes {placeholder} tokens with contact fields. Empty
// fields render as <unknown> so a half-filled contact never produces a
// message with dangling braces.
func RenderTemplate(template string, contact *model.Contact) string {
	fields := map[string]string{
		"first_name": contact.FirstName,
		"last_name":  contact.LastName,
		"email":      contact.Email,
		"company":    contact.Company,
		"title":      contact.Title,
	}
	result := template
	for k, v := range fields {
		if v == "" {
			v = "<unknown>"
		}
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
