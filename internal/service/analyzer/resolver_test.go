package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labguard/detection-service/internal/models"
)

type fakeJudge struct {
	judgment *Judgment
	err      error
	calls    int
}

func (f *fakeJudge) Judge(ctx context.Context, codeA, codeB string) (*Judgment, error) {
	f.calls++
	return f.judgment, f.err
}

func submission(id, source string) *models.Submission {
	return &models.Submission{StudentID: id, SourceText: source, Valid: true}
}

func TestResolverCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("IdenticalHexSkipsJudge", func(t *testing.T) {
		judge := &fakeJudge{judgment: &Judgment{IsPlagiarized: false, Reasoning: "looks fine"}}
		r := NewResolver(judge, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.5, 0.5, 1.0)
		r.Resolve(ctx, rec, submission("s1", "mov a,#55h"), submission("s2", "mov a,#85h"))

		assert.Equal(t, models.VerdictPlagiarized, rec.Verdict)
		assert.Equal(t, "hex output identical (100%)", rec.Reasoning)
		assert.False(t, rec.JudgeConsulted)
		assert.Zero(t, judge.calls, "judge must not be consulted for identical hex")
	})

	t.Run("JudgeVerdictVerbatim", func(t *testing.T) {
		judge := &fakeJudge{judgment: &Judgment{IsPlagiarized: true, Reasoning: "same register usage and control flow"}}
		r := NewResolver(judge, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.9, 0.9, 0.5)
		r.Resolve(ctx, rec, submission("s1", "a"), submission("s2", "b"))

		assert.Equal(t, models.VerdictPlagiarized, rec.Verdict)
		assert.Equal(t, "same register usage and control flow", rec.Reasoning)
		assert.True(t, rec.JudgeConsulted)
	})

	t.Run("JudgeNotPlagiarizedOverridesHighScores", func(t *testing.T) {
		judge := &fakeJudge{judgment: &Judgment{IsPlagiarized: false, Reasoning: "different algorithms"}}
		r := NewResolver(judge, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.95, 0.95, 0.9)
		r.Resolve(ctx, rec, submission("s1", "a"), submission("s2", "b"))

		assert.Equal(t, models.VerdictNotPlagiarized, rec.Verdict)
	})

	t.Run("FallbackAboveThreshold", func(t *testing.T) {
		r := NewResolver(NoJudge{}, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.90, 0.90, 0.5)
		r.Resolve(ctx, rec, submission("s1", "a"), submission("s2", "b"))

		assert.Equal(t, models.VerdictPlagiarized, rec.Verdict)
		assert.Contains(t, rec.Reasoning, "judgment unavailable")
		assert.False(t, rec.JudgeConsulted)
	})

	t.Run("FallbackBelowThreshold", func(t *testing.T) {
		r := NewResolver(NoJudge{}, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.80, 0.80, 0.5)
		r.Resolve(ctx, rec, submission("s1", "a"), submission("s2", "b"))

		assert.Equal(t, models.VerdictNotPlagiarized, rec.Verdict)
	})

	t.Run("FallbackUsesHexWhenHigher", func(t *testing.T) {
		r := NewResolver(NoJudge{}, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.2, 0.2, 0.95)
		r.Resolve(ctx, rec, submission("s1", "a"), submission("s2", "b"))

		assert.Equal(t, models.VerdictPlagiarized, rec.Verdict)
		assert.Contains(t, rec.Reasoning, "hex levenshtein score")
	})

	t.Run("JudgeFailureFallsThrough", func(t *testing.T) {
		judge := &fakeJudge{err: errors.New("deadline exceeded")}
		r := NewResolver(judge, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.90, 0.90, 0.5)
		r.Resolve(ctx, rec, submission("s1", "a"), submission("s2", "b"))

		assert.Equal(t, models.VerdictPlagiarized, rec.Verdict)
		assert.True(t, rec.JudgeConsulted, "a failed attempt still counts as consulted")
		assert.Equal(t, 1, judge.calls)
	})
}

func TestResolverInvalidOverride(t *testing.T) {
	ctx := context.Background()

	t.Run("OverridesNotPlagiarized", func(t *testing.T) {
		r := NewResolver(NoJudge{}, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.3, 0.3, 0.3)
		rec.InvalidStudents = []string{"s2"}
		r.Resolve(ctx, rec, submission("s1", "a"), submission("s2", "b"))

		assert.Equal(t, models.VerdictInvalidSubmission, rec.Verdict)
		assert.Contains(t, rec.Reasoning, "invalid submission: s2")
		assert.Contains(t, rec.Reasoning, "judgment unavailable", "cascade reasoning is preserved")
	})

	t.Run("PlagiarismOutranksInvalid", func(t *testing.T) {
		r := NewResolver(NoJudge{}, 0, 0, zerolog.Nop())

		rec := record("s1", "s2", 0.5, 0.5, 1.0)
		rec.InvalidStudents = []string{"s1", "s2"}
		r.Resolve(ctx, rec, submission("s1", "a"), submission("s2", "b"))

		assert.Equal(t, models.VerdictPlagiarized, rec.Verdict)
	})
}

func TestResolverNearIdenticalAssembly(t *testing.T) {
	// Two one-instruction variants with identical compiled output: rule 1
	// fires, no judge call, verdict plagiarized.
	judge := &fakeJudge{judgment: &Judgment{IsPlagiarized: false, Reasoning: "unused"}}
	r := NewResolver(judge, 0, 0, zerolog.Nop())

	a := submission("s1", "mov a,#55h sjmp loop")
	b := submission("s2", "mov a,#85h sjmp loop")

	hex := []byte{0x74, 0x55, 0x80, 0xFE}
	rec := &models.ComparisonRecord{
		StudentA: "s1",
		StudentB: "s2",
		Scores: models.PairScores{
			Source: models.ChannelScores{
				LCS:         SequenceSimilarity([]string{"mov", "a,#55h", "sjmp", "loop"}, []string{"mov", "a,#85h", "sjmp", "loop"}),
				Levenshtein: EditSimilarity([]rune(a.SourceText), []rune(b.SourceText)),
			},
			Hex: models.ChannelScores{
				LCS:         SequenceSimilarity(hex, hex),
				Levenshtein: EditSimilarity(hex, hex),
			},
		},
	}
	rec.AggregateSource = rec.Scores.AggregateSource()

	require.Equal(t, 1.0, rec.Scores.Hex.Levenshtein)
	r.Resolve(context.Background(), rec, a, b)

	assert.Equal(t, models.VerdictPlagiarized, rec.Verdict)
	assert.Zero(t, judge.calls)
}
