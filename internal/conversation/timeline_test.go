package conversation

import (
	"context"
	"testing"

	"consultbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimelineSinceAndSubscribe(t *testing.T) {
	tl := NewTimeline()

	var seen []string
	unsubscribe := tl.Subscribe(func(m models.Message) {
		seen = append(seen, m.Text)
	})

	tl.append(models.Message{ID: "1", Text: "a"})
	tl.append(models.Message{ID: "2", Text: "b"})
	unsubscribe()
	tl.append(models.Message{ID: "3", Text: "c"})

	assert.Equal(t, []string{"a", "b"}, seen)
	assert.Equal(t, 3, tl.Len())

	since := tl.Since(1)
	require.Len(t, since, 2)
	assert.Equal(t, "b", since[0].Text)

	assert.Empty(t, tl.Since(10))
	assert.Len(t, tl.Since(-1), 3)

	// копия не влияет на журнал
	msgs := tl.Messages()
	msgs[0].Text = "changed"
	assert.Equal(t, "a", tl.Messages()[0].Text)
}

func TestParseContactDetails(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    models.ContactDetails
		wantErr bool
	}{
		{
			name:  "valid",
			input: "Wade Wilson, wade@xforce.com, 555-0100",
			want:  models.ContactDetails{Name: "Wade Wilson", Email: "wade@xforce.com", Phone: "555-0100"},
		},
		{
			name:  "extra whitespace",
			input: "  Jane Doe ,jane@example.com,   +1 555 123 ",
			want:  models.ContactDetails{Name: "Jane Doe", Email: "jane@example.com", Phone: "+1 555 123"},
		},
		{name: "two fields", input: "Wade, wade@xforce.com", wantErr: true},
		{name: "four fields", input: "Wade, Wilson, wade@xforce.com, 555", wantErr: true},
		{name: "empty name", input: " , wade@xforce.com, 555", wantErr: true},
		{name: "bad email", input: "Wade, wade.xforce.com, 555", wantErr: true},
		{name: "phone without digits", input: "Wade, wade@xforce.com, none", wantErr: true},
		{name: "email starting with at", input: "Wade, @xforce.com, 555", wantErr: true},
		{name: "email with space", input: "Wade, wade @xforce.com, 555", wantErr: true},
		// loose on purpose, the OTP round trip is the real contact check
		{
			name:  "local email domain",
			input: "Wade, wade@localhost, call me at ext 5",
			want:  models.ContactDetails{Name: "Wade", Email: "wade@localhost", Phone: "call me at ext 5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseContactDetails(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRetryRegistry(t *testing.T) {
	r := newRetryRegistry()
	calls := 0
	id := r.register("op", models.StateIdle, func(ctx context.Context) { calls++ })
	other := r.register("op", models.StateIdle, nil)
	assert.NotEqual(t, id, other)
	assert.Equal(t, 2, r.len())

	e, ok := r.take(id)
	require.True(t, ok)
	e.run(context.Background())
	assert.Equal(t, 1, calls)

	_, ok = r.take(id)
	assert.False(t, ok)

	r.clear()
	assert.Equal(t, 0, r.len())
}
