package classifier

import (
	"encoding/json"
	"fmt"
	"strings"

	"consultbot/internal/domain"
	"consultbot/internal/models"
)

const systemPrompt = `You are the booking assistant of a consulting firm.
Analyze the user's message and extract intent, entities, and the service that best matches any problem described.

Available Services:
%s
Rules:
1. If the user describes a problem (e.g. "tax audit help"), map it to the closest service ID.
2. If the user wants to book, intent is "BOOK".
3. If the user wants to change an existing booking, intent is "RESCHEDULE".
4. If the user wants to cancel a booking, intent is "CANCEL".
5. If the user input is a greeting or a general question, intent is "GENERAL_QUERY".
6. If you cannot tell, intent is "UNKNOWN".
7. Always provide a friendly, professional "replyText" to be displayed to the user.

RESPONSE FORMAT:
Respond with a single JSON object and nothing else:
{
  "intent": "BOOK | RESCHEDULE | CANCEL | GENERAL_QUERY | UNKNOWN",
  "recommendedServiceId": "service ID or empty string",
  "extractedDate": "YYYY-MM-DD or empty string",
  "replyText": "Your response to the user"
}`

// BuildSystemPrompt renders the instruction block with the catalog services.
func BuildSystemPrompt(services []models.Service) string {
	var builder strings.Builder
	for _, s := range services {
		builder.WriteString(fmt.Sprintf("- ID: %s, Name: %s, Desc: %s\n", s.ID, s.Name, s.Description))
	}
	return fmt.Sprintf(systemPrompt, builder.String())
}

// ParseResponse extracts and validates the JSON object from a model reply.
func ParseResponse(content string) (*models.IntentResult, error) {
	jsonContent := extractJSON(content)
	if jsonContent == "" {
		return nil, fmt.Errorf("%w: no JSON object in response", domain.ErrClassifierUnavailable)
	}

	var result models.IntentResult
	if err := json.Unmarshal([]byte(jsonContent), &result); err != nil {
		return nil, fmt.Errorf("%w: failed to parse JSON: %v", domain.ErrClassifierUnavailable, err)
	}

	result.Intent = models.Intent(strings.ToUpper(strings.TrimSpace(string(result.Intent))))
	if !result.Intent.Valid() {
		return nil, fmt.Errorf("%w: unexpected intent %q", domain.ErrClassifierUnavailable, result.Intent)
	}
	if strings.TrimSpace(result.ReplyText) == "" {
		return nil, fmt.Errorf("%w: empty replyText", domain.ErrClassifierUnavailable)
	}
	result.RecommendedServiceID = strings.TrimSpace(result.RecommendedServiceID)
	result.ExtractedDate = strings.TrimSpace(result.ExtractedDate)
	return &result, nil
}

func extractJSON(content string) string {
	start := strings.Index(content, "{")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(content, "}")
	if end == -1 || end <= start {
		return ""
	}

	return content[start : end+1]
}
