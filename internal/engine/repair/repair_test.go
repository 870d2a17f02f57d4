// internal/engine/repair/repair_test.go
package repair

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no fences", `{"a":1}`, `{"a":1}`},
		{"plain fences", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"json tag", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding whitespace", "  ```json\n{\"a\":1}\n```  ", `{"a":1}`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, StripFences(tt.input))
		})
	}
}

func TestDecode(t *testing.T) {
	type reply struct {
		Questions []string `json:"questions"`
	}

	t.Run("valid json", func(t *testing.T) {
		var r reply
		err := Decode(`{"questions":["What matters most?"]}`, &r)
		require.NoError(t, err)
		assert.Len(t, r.Questions, 1)
	})

	t.Run("fenced json", func(t *testing.T) {
		var r reply
		err := Decode("```json\n{\"questions\":[\"a?\"]}\n```", &r)
		require.NoError(t, err)
		assert.Equal(t, []string{"a?"}, r.Questions)
	})

	t.Run("json embedded in prose", func(t *testing.T) {
		var r reply
		err := Decode(`Sure, here you go: {"questions":["b?"]} hope that helps`, &r)
		require.NoError(t, err)
		assert.Equal(t, []string{"b?"}, r.Questions)
	})

	t.Run("garbage is parse failure", func(t *testing.T) {
		var r reply
		err := Decode("I cannot answer that.", &r)
		assert.ErrorIs(t, err, ErrParseFailed)
	})

	t.Run("empty is parse failure", func(t *testing.T) {
		var r reply
		err := Decode("", &r)
		assert.ErrorIs(t, err, ErrParseFailed)
	})

	t.Run("parsed but empty is not an error", func(t *testing.T) {
		var r reply
		err := Decode(`{"questions":[]}`, &r)
		require.NoError(t, err)
		assert.Empty(t, r.Questions)
	})
}

func TestQuestionLines(t *testing.T) {
	raw := `Here are some follow-ups:
1. What is your monthly budget?
- How soon do you need to decide?
Some commentary without a question.
3) Which option excites you more?`

	lines := QuestionLines(raw)
	require.Len(t, lines, 3)
	assert.Equal(t, "What is your monthly budget?", lines[0])
	assert.Equal(t, "How soon do you need to decide?", lines[1])
	assert.Equal(t, "Which option excites you more?", lines[2])
}

func TestQuestionLinesEmptyInput(t *testing.T) {
	assert.Empty(t, QuestionLines("no questions here at all"))
	assert.Empty(t, QuestionLines(""))
}

func TestLabel(t *testing.T) {
	allowed := []string{"structured", "intuitive", "mixed"}

	tests := []struct {
		name  string
		raw   string
		want  string
		found bool
	}{
		{"exact", "structured", "structured", true},
		{"embedded in prose", "This is clearly an INTUITIVE decision.", "intuitive", true},
		{"fenced", "```\nmixed\n```", "mixed", true},
		{"no match", "analytical", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Label(tt.raw, allowed)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
