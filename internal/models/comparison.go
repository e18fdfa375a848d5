package models

import "strings"

type Verdict string

const (
	VerdictPlagiarized       Verdict = "plagiarized"
	VerdictNotPlagiarized    Verdict = "not_plagiarized"
	VerdictInvalidSubmission Verdict = "invalid_submission"
)

// ChannelScores holds both algorithm scores for one channel, each in [0,1].
// A channel that is empty on either side of the pair scores 0 on both
// algorithms, never "undefined", so filtering stays monotonic.
type ChannelScores struct {
	LCS         float64 `json:"lcs"`
	Levenshtein float64 `json:"levenshtein"`
}

type PairScores struct {
	Source ChannelScores `json:"source"`
	Hex    ChannelScores `json:"hex"`
}

// AggregateSource is the arithmetic mean of the two source-channel scores.
// The hex channel is tracked separately and never averaged in.
func (p PairScores) AggregateSource() float64 {
	return (p.Source.LCS + p.Source.Levenshtein) / 2
}

// MaxScore is the ranking key for report ordering.
func (p PairScores) MaxScore() float64 {
	m := p.Source.LCS
	for _, v := range []float64{p.Source.Levenshtein, p.Hex.LCS, p.Hex.Levenshtein} {
		if v > m {
			m = v
		}
	}
	return m
}

// ComparisonRecord is the scored result for one unordered pair of
// submissions. Scores are immutable once computed; the verdict fields are
// filled exactly once by the resolver for candidate records.
type ComparisonRecord struct {
	StudentA string `json:"student_a"`
	StudentB string `json:"student_b"`

	Scores          PairScores `json:"scores"`
	AggregateSource float64    `json:"aggregate_source_score"`

	// Candidate is set by the filter. Non-candidate records keep the zero
	// verdict and are reported as "not suspicious", not "not plagiarized".
	Candidate bool `json:"candidate"`

	Verdict   Verdict `json:"verdict,omitempty"`
	Reasoning string  `json:"reasoning,omitempty"`

	// JudgeConsulted records whether the external judgment service was
	// asked about this pair (never true for exact-hex matches).
	JudgeConsulted bool `json:"judge_consulted"`

	// InvalidStudents lists the pair members with invalid submissions.
	// When non-empty and the cascade did not find plagiarism, Verdict is
	// overridden to invalid_submission while Reasoning keeps the cascade
	// trail.
	InvalidStudents []string `json:"invalid_students,omitempty"`

	AnomalyTagsA []AnomalyTag `json:"anomaly_tags_a,omitempty"`
	AnomalyTagsB []AnomalyTag `json:"anomaly_tags_b,omitempty"`

	// MatchingFragments are equal source fragments surfaced for report
	// rendering. Data only, no decision logic depends on them.
	MatchingFragments []MatchFragment `json:"matching_fragments,omitempty"`
}

// PairID is the deterministic identifier of the unordered pair. Student
// IDs are sorted so that {A,B} and {B,A} share one identity.
func (r *ComparisonRecord) PairID() string {
	if strings.Compare(r.StudentA, r.StudentB) <= 0 {
		return r.StudentA + "|" + r.StudentB
	}
	return r.StudentB + "|" + r.StudentA
}

// MatchFragment is a stretch of text common to both cleaned sources.
type MatchFragment struct {
	Text    string `json:"text"`
	Length  int    `json:"length"`
	OffsetA int    `json:"offset_a"`
	OffsetB int    `json:"offset_b"`
}
