package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"consultbot/internal/config"
	"consultbot/internal/domain"
	"consultbot/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fakeModel struct {
	content  string
	err      error
	messages []llms.MessageContent
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = messages
	if f.err != nil {
		return nil, f.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.content}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func testCatalog() models.Catalog {
	return models.Catalog{Services: config.DefaultServices(), Consultants: config.DefaultConsultants()}
}

func newLLM(model llms.Model) *LLMClassifier {
	logger := zerolog.Nop()
	return NewLLMClassifier(model, testCatalog(), time.Second, &logger)
}

func TestLLMClassifierParsesJSON(t *testing.T) {
	model := &fakeModel{content: "Sure!\n```json\n{\"intent\":\"book\",\"recommendedServiceId\":\"financial\",\"replyText\":\"Let's get your taxes sorted.\"}\n```"}
	c := newLLM(model)

	res, err := c.Classify(context.Background(), "I need tax filing help")
	require.NoError(t, err)
	assert.Equal(t, models.IntentBook, res.Intent)
	assert.Equal(t, "financial", res.RecommendedServiceID)
	assert.Equal(t, "Let's get your taxes sorted.", res.ReplyText)

	require.Len(t, model.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, model.messages[0].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, model.messages[1].Role)
}

func TestLLMClassifierFailuresAreErrors(t *testing.T) {
	tests := []struct {
		name  string
		model *fakeModel
	}{
		{"transport error", &fakeModel{err: errors.New("connection reset")}},
		{"no json", &fakeModel{content: "I am not sure"}},
		{"broken json", &fakeModel{content: `{"intent": "BOOK",`}},
		{"bad intent", &fakeModel{content: `{"intent":"DANCE","replyText":"ok"}`}},
		{"missing reply", &fakeModel{content: `{"intent":"BOOK"}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newLLM(tt.model).Classify(context.Background(), "hello")
			assert.ErrorIs(t, err, domain.ErrClassifierUnavailable)
		})
	}
}

func TestLLMClassifierUnknownIsNotAnError(t *testing.T) {
	c := newLLM(&fakeModel{content: `{"intent":"UNKNOWN","replyText":"Could you rephrase?"}`})
	res, err := c.Classify(context.Background(), "asdf")
	require.NoError(t, err)
	assert.Equal(t, models.IntentUnknown, res.Intent)
}

func TestBuildSystemPromptListsServices(t *testing.T) {
	p := BuildSystemPrompt(config.DefaultServices())
	for _, id := range []string{"financial", "legal", "marketing", "tech"} {
		assert.Contains(t, p, "ID: "+id)
	}
}

func TestKeywordClassifier(t *testing.T) {
	k := NewKeywordClassifier(testCatalog())
	k.now = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

	tests := []struct {
		text        string
		intent      models.Intent
		recommended string
		date        string
	}{
		{"I need help with tax filing", models.IntentBook, "financial", ""},
		{"Book a legal consultation", models.IntentBook, "legal", ""},
		{"Reschedule my appointment", models.IntentReschedule, "", ""},
		{"Cancel a booking", models.IntentCancel, "", ""},
		{"What services do you offer?", models.IntentGeneralQuery, "", ""},
		{"my SEO is terrible", models.IntentBook, "marketing", ""},
		{"book something tomorrow", models.IntentBook, "", "2026-03-10"},
		{"book on 2026-04-01 for cloud migration", models.IntentBook, "tech", "2026-04-01"},
		{"qwerty", models.IntentUnknown, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			res, err := k.Classify(context.Background(), tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.intent, res.Intent)
			assert.Equal(t, tt.recommended, res.RecommendedServiceID)
			assert.Equal(t, tt.date, res.ExtractedDate)
			assert.NotEmpty(t, res.ReplyText)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON(`noise {"a":1} tail`))
	assert.Equal(t, "", extractJSON("no braces"))
	assert.Equal(t, "", extractJSON("} reversed {"))
}
