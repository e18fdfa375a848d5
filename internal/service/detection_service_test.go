package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labguard/detection-service/internal/models"
	"github.com/labguard/detection-service/internal/preprocessor"
	"github.com/labguard/detection-service/internal/service/analyzer"
)

func newBuildService() *detectionService {
	return &detectionService{
		detector: analyzer.NewAnomalyDetector(analyzer.DefaultAnomalyConfig(), zerolog.Nop()),
		compiler: preprocessor.UnavailableCompiler{},
		logger:   zerolog.Nop(),
	}
}

type fakeCompiler struct {
	asm string
	err error
}

func (c fakeCompiler) Compile(_ context.Context, _ string) (string, error) {
	return c.asm, c.err
}

const cleanAsm = "ORG 0000H\nMOV A,#55H\nMOV P1,A\nLOOP: SJMP LOOP\nEND\n"

// 24-byte data record plus EOF, well formed.
const cleanHex = ":18000000000102030405060708090A0B0C0D0E0F1011121314151617D4\n:00000001FF\n"

func hasTag(tags []models.AnomalyTag, kind models.AnomalyKind) bool {
	for _, tag := range tags {
		if tag.Kind == kind {
			return true
		}
	}
	return false
}

func TestBuildSubmissions(t *testing.T) {
	s := newBuildService()

	t.Run("CleanSubmission", func(t *testing.T) {
		subs, invalid := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{
				StudentID:   "s1",
				SourceFiles: []models.SourceFile{{Name: "blink.a51", Content: cleanAsm}},
				HexFiles:    []models.SourceFile{{Name: "blink.hex", Content: cleanHex}},
			},
		})

		require.Len(t, subs, 1)
		assert.Empty(t, invalid)
		assert.True(t, subs[0].Valid)
		assert.True(t, subs[0].HasSource())
		assert.True(t, subs[0].HasHex())
		assert.NotEmpty(t, subs[0].ContentHash)
		assert.Equal(t, "org 0000h mov a,#55h mov p1,a loop: sjmp loop end", subs[0].SourceText)
	})

	t.Run("EmptySubmissionInvalid", func(t *testing.T) {
		subs, invalid := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{StudentID: "s1"},
		})

		require.Len(t, subs, 1)
		assert.False(t, subs[0].Valid)
		require.Len(t, invalid, 1)
		assert.Equal(t, "s1", invalid[0].StudentID)
		assert.Contains(t, invalid[0].Reason, "no usable source")
	})

	t.Run("CommentOnlySourceInvalid", func(t *testing.T) {
		subs, _ := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{
				StudentID:   "s1",
				SourceFiles: []models.SourceFile{{Name: "empty.a51", Content: "; nothing here\n; at all\n"}},
			},
		})

		require.Len(t, subs, 1)
		assert.False(t, subs[0].Valid)
		assert.False(t, subs[0].HasSource())
	})

	t.Run("AnomaliesAreWarningsOnly", func(t *testing.T) {
		subs, invalid := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{
				StudentID:   "s1",
				SourceFiles: []models.SourceFile{{Name: "short.a51", Content: "MOV A,#55H\nSJMP $\nNOP\n"}},
				HexFiles:    []models.SourceFile{{Name: "short.hex", Content: cleanHex}},
			},
		})

		require.Len(t, subs, 1)
		assert.True(t, subs[0].Valid, "structural anomalies do not invalidate a complete submission")
		assert.Empty(t, invalid)
		assert.True(t, hasTag(subs[0].AnomalyTags, models.AnomalyMissingKeyInstruction))
	})

	t.Run("MissingHexInvalid", func(t *testing.T) {
		subs, invalid := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{
				StudentID:   "s1",
				SourceFiles: []models.SourceFile{{Name: "blink.a51", Content: cleanAsm}},
			},
		})

		require.Len(t, subs, 1)
		assert.False(t, subs[0].Valid, "each channel is required on its own")
		assert.True(t, subs[0].HasSource(), "the present channel still participates in comparison")
		require.Len(t, invalid, 1)
		assert.Contains(t, invalid[0].Reason, "hex")
		assert.NotContains(t, invalid[0].Reason, "source")
	})

	t.Run("MissingSourceInvalid", func(t *testing.T) {
		subs, invalid := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{
				StudentID: "s1",
				HexFiles:  []models.SourceFile{{Name: "blink.hex", Content: cleanHex}},
			},
		})

		require.Len(t, subs, 1)
		assert.False(t, subs[0].Valid)
		assert.True(t, subs[0].HasHex())
		require.Len(t, invalid, 1)
		assert.Contains(t, invalid[0].Reason, "source")
		assert.NotContains(t, invalid[0].Reason, "hex")
	})

	t.Run("HexLengthOutlierAgainstCohort", func(t *testing.T) {
		// Three well-formed streams; payload lengths 24, 24 and 6 bytes.
		short := ":06000000000102030405EB\n:00000001FF\n"
		src := []models.SourceFile{{Name: "blink.a51", Content: cleanAsm}}

		subs, invalid := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{StudentID: "s1", SourceFiles: src, HexFiles: []models.SourceFile{{Name: "a.hex", Content: cleanHex}}},
			{StudentID: "s2", SourceFiles: src, HexFiles: []models.SourceFile{{Name: "b.hex", Content: cleanHex}}},
			{StudentID: "s3", SourceFiles: src, HexFiles: []models.SourceFile{{Name: "c.hex", Content: short}}},
		})

		require.Len(t, subs, 3)
		assert.Empty(t, invalid, "an outlier hex length is a warning, not a defect")
		assert.True(t, subs[2].Valid)
		assert.True(t, hasTag(subs[2].AnomalyTags, models.AnomalyLengthOutlier))
		assert.False(t, hasTag(subs[0].AnomalyTags, models.AnomalyLengthOutlier))
		assert.False(t, hasTag(subs[1].AnomalyTags, models.AnomalyLengthOutlier))
	})

	t.Run("InvalidListSortedByStudent", func(t *testing.T) {
		_, invalid := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{StudentID: "zeta"},
			{StudentID: "alpha"},
		})

		require.Len(t, invalid, 2)
		assert.Equal(t, "alpha", invalid[0].StudentID)
		assert.Equal(t, "zeta", invalid[1].StudentID)
	})

	t.Run("CSourceCompiledWhenCompilerAvailable", func(t *testing.T) {
		compiled := &detectionService{
			detector: analyzer.NewAnomalyDetector(analyzer.DefaultAnomalyConfig(), zerolog.Nop()),
			compiler: fakeCompiler{asm: "ORG 0000H\nMOV A,#01H\nEND\n"},
			logger:   zerolog.Nop(),
		}

		subs, _ := compiled.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{
				StudentID:   "s1",
				SourceFiles: []models.SourceFile{{Name: "main.c", Content: "void main(void) { P1 = 0x01; }\n"}},
			},
		})

		require.Len(t, subs, 1)
		assert.Equal(t, "org 0000h mov a,#01h end", subs[0].SourceText)
	})

	t.Run("CompilerUnavailableFallsBackToCSource", func(t *testing.T) {
		subs, _ := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{
				StudentID:   "s1",
				SourceFiles: []models.SourceFile{{Name: "main.c", Content: "void main(void) { P1 = 0x01; }\n"}},
			},
		})

		require.Len(t, subs, 1)
		assert.Equal(t, "void main(void) { p1 = 0x01; }", subs[0].SourceText)
	})

	t.Run("CompileFailureEmptiesSourceChannel", func(t *testing.T) {
		failing := &detectionService{
			detector: analyzer.NewAnomalyDetector(analyzer.DefaultAnomalyConfig(), zerolog.Nop()),
			compiler: fakeCompiler{err: errors.New("syntax error at line 3")},
			logger:   zerolog.Nop(),
		}

		subs, invalid := failing.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{
				StudentID:   "s1",
				SourceFiles: []models.SourceFile{{Name: "main.c", Content: "void main(void) { P1 = 0x01; }\n"}},
			},
		})

		require.Len(t, subs, 1)
		assert.Empty(t, subs[0].SourceText)
		assert.False(t, subs[0].Valid)
		require.NotEmpty(t, invalid)
	})

	t.Run("IdenticalContentSharesHash", func(t *testing.T) {
		subs, _ := s.buildSubmissions(context.Background(), []models.SubmissionPayload{
			{StudentID: "s1", SourceFiles: []models.SourceFile{{Name: "a.a51", Content: cleanAsm}}},
			{StudentID: "s2", SourceFiles: []models.SourceFile{{Name: "b.a51", Content: cleanAsm}}},
		})

		require.Len(t, subs, 2)
		assert.Equal(t, subs[0].ContentHash, subs[1].ContentHash)
	})
}

func TestMedianHexLength(t *testing.T) {
	sub := func(n int) *models.Submission {
		return &models.Submission{HexData: make([]byte, n)}
	}

	t.Run("NoHex", func(t *testing.T) {
		assert.Zero(t, medianHexLength([]*models.Submission{{}, {}}))
	})

	t.Run("OddCount", func(t *testing.T) {
		assert.Equal(t, 100, medianHexLength([]*models.Submission{sub(50), sub(100), sub(150)}))
	})

	t.Run("EvenCount", func(t *testing.T) {
		assert.Equal(t, 75, medianHexLength([]*models.Submission{sub(50), sub(100)}))
	})

	t.Run("SkipsSubmissionsWithoutHex", func(t *testing.T) {
		assert.Equal(t, 100, medianHexLength([]*models.Submission{{}, sub(100)}))
	})
}
