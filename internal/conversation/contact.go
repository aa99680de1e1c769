package conversation

import (
	"errors"
	"strings"

	"consultbot/internal/models"
)

var errContactFormat = errors.New("expected name, email, phone")

// ParseContactDetails splits "name, email, phone" into trimmed fields.
// Exactly three non-empty fields are required, the email needs an @ and the
// phone at least one digit.
func ParseContactDetails(text string) (models.ContactDetails, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 3 {
		return models.ContactDetails{}, errContactFormat
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if parts[i] == "" {
			return models.ContactDetails{}, errContactFormat
		}
	}

	at := strings.Index(parts[1], "@")
	if at <= 0 || at == len(parts[1])-1 || strings.ContainsAny(parts[1], " \t") {
		return models.ContactDetails{}, errContactFormat
	}

	if !strings.ContainsAny(parts[2], "0123456789") {
		return models.ContactDetails{}, errContactFormat
	}

	return models.ContactDetails{Name: parts[0], Email: parts[1], Phone: parts[2]}, nil
}
