package safety

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	s := NewSanitizer(nil, "")

	tests := []struct {
		name   string
		in     string
		found  []string
		absent string
	}{
		{"english", "I'm not sure, but 7326.90 fits best.", []string{"I'm not sure"}, "not sure"},
		{"case insensitive", "IT IS UNCLEAR whether the box is a container.", []string{"it is unclear"}, "UNCLEAR"},
		{"curly apostrophe", "I don’t know the exact use.", []string{"I don't know"}, "know the"},
		{"hebrew", "אני לא בטוחה שהסיווג נכון.", []string{"אני לא בטוחה"}, "בטוח"},
		{"several", "Hard to say. You may want to consult a customs broker.", []string{"consult a customs broker", "hard to say"}, "consult"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Sanitize(tt.in)
			assert.True(t, got.WasModified)
			assert.ElementsMatch(t, tt.found, got.Found)
			assert.NotContains(t, got.Text, tt.absent)
			assert.Equal(t, 1, strings.Count(got.Text, DefaultFallback))
		})
	}
}

func TestSanitize_CleanTextUntouched(t *testing.T) {
	in := "Classified under 7326.90.0000 as other articles of steel."
	got := NewSanitizer(nil, "").Sanitize(in)
	assert.False(t, got.WasModified)
	assert.Empty(t, got.Found)
	assert.Equal(t, in, got.Text)
}

func TestSanitize_FallbackAppendedOnce(t *testing.T) {
	s := NewSanitizer([]string{"maybe"}, "Call us.")
	first := s.Sanitize("Maybe heading 7326.")
	assert.Equal(t, "heading 7326.\n\nCall us.", first.Text)

	second := s.Sanitize(first.Text + " maybe")
	assert.True(t, second.WasModified)
	assert.Equal(t, 1, strings.Count(second.Text, "Call us."))
}
