package integration

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseJudgment(t *testing.T) {
	t.Run("PlainJSON", func(t *testing.T) {
		j, err := parseJudgment(`{"reasoning": "identical control flow", "is_plagiarized": true}`)
		require.NoError(t, err)
		assert.True(t, j.IsPlagiarized)
		assert.Equal(t, "identical control flow", j.Reasoning)
	})

	t.Run("FencedJSON", func(t *testing.T) {
		content := "```json\n{\"reasoning\": \"different loop structure\", \"is_plagiarized\": false}\n```"
		j, err := parseJudgment(content)
		require.NoError(t, err)
		assert.False(t, j.IsPlagiarized)
	})

	t.Run("JSONEmbeddedInProse", func(t *testing.T) {
		content := "The snippets share register usage.\n{\"reasoning\": \"same algorithm\", \"is_plagiarized\": true}\nEnd of analysis."
		j, err := parseJudgment(content)
		require.NoError(t, err)
		assert.True(t, j.IsPlagiarized)
	})

	t.Run("NoJSON", func(t *testing.T) {
		_, err := parseJudgment("I cannot determine this.")
		assert.Error(t, err)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := parseJudgment("")
		assert.Error(t, err)
	})
}
