package analyzer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labguard/detection-service/internal/models"
	"github.com/rs/zerolog"
)

// ErrJudgeUnavailable signals that no semantic judgment could be obtained
// for a pair. The resolver falls back to the algorithmic rule; the error
// is never fatal to a run.
var ErrJudgeUnavailable = errors.New("judgment service unavailable")

// Judgment is the external service's answer for one pair.
type Judgment struct {
	IsPlagiarized bool   `json:"is_plagiarized"`
	Reasoning     string `json:"reasoning"`
}

// Judge is the semantic-judgment capability. It is injected into the
// resolver so the rule cascade stays free of environment lookups; the
// absent implementation is NoJudge.
type Judge interface {
	Judge(ctx context.Context, codeA, codeB string) (*Judgment, error)
}

// NoJudge is the absent-capability implementation.
type NoJudge struct{}

func (NoJudge) Judge(ctx context.Context, codeA, codeB string) (*Judgment, error) {
	return nil, ErrJudgeUnavailable
}

// DefaultFallbackThreshold is the fixed cutoff for the algorithmic
// fallback rule. Deliberately independent of the filter thresholds; the
// override exists for testing only.
const DefaultFallbackThreshold = 0.85

// Resolver applies the three-rule cascade to each candidate record.
type Resolver struct {
	judge             Judge
	fallbackThreshold float64
	judgeTimeout      time.Duration
	logger            zerolog.Logger
}

func NewResolver(judge Judge, fallbackThreshold float64, judgeTimeout time.Duration, logger zerolog.Logger) *Resolver {
	if judge == nil {
		judge = NoJudge{}
	}
	if fallbackThreshold <= 0 {
		fallbackThreshold = DefaultFallbackThreshold
	}
	if judgeTimeout <= 0 {
		judgeTimeout = 30 * time.Second
	}
	return &Resolver{
		judge:             judge,
		fallbackThreshold: fallbackThreshold,
		judgeTimeout:      judgeTimeout,
		logger:            logger,
	}
}

// Resolve fills the verdict fields of one candidate record. Three ordered
// rules, first match wins:
//
//  1. hex edit-distance similarity exactly 1.0: plagiarized, the judge
//     is never consulted (byte-identical output is conclusive);
//  2. external judgment with verbatim reasoning; a per-pair failure or
//     timeout falls through instead of failing the run;
//  3. algorithmic fallback, max(aggregate source, hex levenshtein)
//     against the fixed threshold.
//
// The invalid-submission override is applied after the cascade so the
// reasoning trail is preserved: plagiarism evidence outranks a formatting
// defect, anything else displays as invalid_submission.
func (r *Resolver) Resolve(ctx context.Context, rec *models.ComparisonRecord, a, b *models.Submission) {
	verdict, reasoning := r.cascade(ctx, rec, a, b)

	if len(rec.InvalidStudents) > 0 && verdict != models.VerdictPlagiarized {
		verdict = models.VerdictInvalidSubmission
		reasoning = fmt.Sprintf("invalid submission: %s | %s",
			strings.Join(rec.InvalidStudents, ", "), reasoning)
	}

	rec.Verdict = verdict
	rec.Reasoning = reasoning

	r.logger.Debug().
		Str("pair", rec.PairID()).
		Str("verdict", string(verdict)).
		Bool("judge_consulted", rec.JudgeConsulted).
		Msg("Verdict resolved")
}

func (r *Resolver) cascade(ctx context.Context, rec *models.ComparisonRecord, a, b *models.Submission) (models.Verdict, string) {
	// Rule 1: byte-identical compiled output.
	if rec.Scores.Hex.Levenshtein == 1.0 {
		return models.VerdictPlagiarized, "hex output identical (100%)"
	}

	// Rule 2: external judgment.
	judgeCtx, cancel := context.WithTimeout(ctx, r.judgeTimeout)
	defer cancel()

	judgment, err := r.judge.Judge(judgeCtx, a.SourceText, b.SourceText)
	// Consulted means an attempt was made, even one that failed; only the
	// absent-capability case leaves the flag unset.
	rec.JudgeConsulted = !errors.Is(err, ErrJudgeUnavailable)
	if err == nil && judgment != nil {
		if judgment.IsPlagiarized {
			return models.VerdictPlagiarized, judgment.Reasoning
		}
		return models.VerdictNotPlagiarized, judgment.Reasoning
	}
	if err != nil && !errors.Is(err, ErrJudgeUnavailable) {
		r.logger.Warn().
			Err(err).
			Str("pair", rec.PairID()).
			Msg("Judgment service failed for pair, using algorithmic fallback")
	}

	// Rule 3: algorithmic fallback.
	agg := rec.AggregateSource
	hexLev := rec.Scores.Hex.Levenshtein
	highest := agg
	trigger := "aggregate source score"
	if hexLev > highest {
		highest = hexLev
		trigger = "hex levenshtein score"
	}

	if highest > r.fallbackThreshold {
		return models.VerdictPlagiarized,
			fmt.Sprintf("judgment unavailable - %s %.2f exceeds fallback threshold %.2f (source=%.2f, hex=%.2f)",
				trigger, highest, r.fallbackThreshold, agg, hexLev)
	}
	return models.VerdictNotPlagiarized,
		fmt.Sprintf("judgment unavailable - no score exceeds fallback threshold %.2f (source=%.2f, hex=%.2f)",
			r.fallbackThreshold, agg, hexLev)
}
