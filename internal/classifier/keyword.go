package classifier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"consultbot/internal/domain"
	"consultbot/internal/models"
)

var isoDate = regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`)

var intentKeywords = []struct {
	intent models.Intent
	words  []string
}{
	{models.IntentReschedule, []string{"reschedule", "move", "postpone", "change"}},
	{models.IntentCancel, []string{"cancel", "cancellation"}},
	{models.IntentBook, []string{"book", "booking", "appointment", "consultation", "schedule", "help", "need", "meet"}},
	{models.IntentGeneralQuery, []string{"hi", "hello", "hey", "services", "offer", "price", "prices", "what"}},
}

var serviceKeywords = map[string][]string{
	"financial": {"tax", "taxes", "finance", "financial", "invest", "investment", "audit", "accounting"},
	"legal":     {"legal", "law", "lawyer", "contract", "contracts", "attorney", "ip", "trademark"},
	"marketing": {"marketing", "brand", "branding", "seo", "campaign", "growth", "ads"},
	"tech":      {"tech", "it", "cloud", "software", "cyber", "cybersecurity", "server", "migration"},
}

// KeywordClassifier is a deterministic classifier used when no model is configured.
type KeywordClassifier struct {
	catalog models.Catalog
	now     func() time.Time
}

var _ domain.IntentClassifier = (*KeywordClassifier)(nil)

func NewKeywordClassifier(catalog models.Catalog) *KeywordClassifier {
	return &KeywordClassifier{catalog: catalog, now: time.Now}
}

func (k *KeywordClassifier) Classify(ctx context.Context, text string) (*models.IntentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	words := tokenize(text)
	result := &models.IntentResult{
		Intent:               models.IntentUnknown,
		RecommendedServiceID: k.recommend(words),
		ExtractedDate:        k.extractDate(text, words),
	}

	for _, group := range intentKeywords {
		if containsAny(words, group.words) {
			result.Intent = group.intent
			break
		}
	}
	// a described problem is a booking request
	if result.RecommendedServiceID != "" && (result.Intent == models.IntentUnknown || result.Intent == models.IntentGeneralQuery) {
		result.Intent = models.IntentBook
	}

	result.ReplyText = k.reply(result)
	return result, nil
}

func (k *KeywordClassifier) recommend(words map[string]bool) string {
	for _, s := range k.catalog.Services {
		if words[strings.ToLower(s.ID)] || containsAny(words, serviceKeywords[s.ID]) {
			return s.ID
		}
	}
	return ""
}

func (k *KeywordClassifier) extractDate(text string, words map[string]bool) string {
	if m := isoDate.FindString(text); m != "" {
		if _, err := time.Parse(models.DateLayout, m); err == nil {
			return m
		}
	}
	switch {
	case words["today"]:
		return k.now().Format(models.DateLayout)
	case words["tomorrow"]:
		return k.now().AddDate(0, 0, 1).Format(models.DateLayout)
	}
	return ""
}

func (k *KeywordClassifier) reply(r *models.IntentResult) string {
	switch r.Intent {
	case models.IntentBook:
		if s, ok := k.catalog.Service(r.RecommendedServiceID); ok {
			return fmt.Sprintf("It sounds like %s is the right fit for you.", s.Name)
		}
		return "Happy to help you book a consultation."
	case models.IntentReschedule:
		return "Sure, let's find your booking and move it."
	case models.IntentCancel:
		return "I can help you cancel a booking."
	case models.IntentGeneralQuery:
		names := make([]string, 0, len(k.catalog.Services))
		for _, s := range k.catalog.Services {
			names = append(names, s.Name)
		}
		return fmt.Sprintf("We offer %s. How can I help you today?", strings.Join(names, ", "))
	default:
		return "I'm not sure I understood. You can book, reschedule, or cancel an appointment."
	}
}

func tokenize(text string) map[string]bool {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	words := make(map[string]bool, len(fields))
	for _, f := range fields {
		words[f] = true
	}
	return words
}

func containsAny(words map[string]bool, candidates []string) bool {
	for _, c := range candidates {
		if words[c] {
			return true
		}
	}
	return false
}
