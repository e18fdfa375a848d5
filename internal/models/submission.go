package models

// AnomalyKind enumerates the structural defects the anomaly detector can
// flag on a single submission. Tags are surfaced as warnings on the report
// and never affect the verdict or the submission's validity.
type AnomalyKind string

const (
	AnomalyMissingEOFMarker      AnomalyKind = "missing_eof_marker"
	AnomalyMalformedHexRecord    AnomalyKind = "malformed_hex_record"
	AnomalyLengthOutlier         AnomalyKind = "length_outlier"
	AnomalyInsufficientData      AnomalyKind = "insufficient_data"
	AnomalyTooFewInstructions    AnomalyKind = "too_few_instructions"
	AnomalyMissingKeyInstruction AnomalyKind = "missing_key_instruction"
	AnomalyExcessiveCommentRatio AnomalyKind = "excessive_comment_ratio"
	AnomalyExcessiveBlankRatio   AnomalyKind = "excessive_blank_ratio"
)

type AnomalyTag struct {
	Kind   AnomalyKind `json:"kind"`
	Detail string      `json:"detail"`
}

// Submission holds one student's cleaned data for a detection run.
// It is built once during preprocessing and never mutated afterwards,
// except for attaching anomaly tags.
type Submission struct {
	StudentID string `json:"student_id"`

	// SourceText is the cleaned, whitespace-normalized source; SourceTokens
	// is its whitespace tokenization. Both may be empty.
	SourceText   string   `json:"-"`
	SourceTokens []string `json:"-"`

	// HexData is the concatenated Intel HEX data payload (record type 00).
	HexData []byte `json:"-"`

	// ContentHash identifies the submission by content, not by student ID.
	// Used as the memoization key for pair scores.
	ContentHash string `json:"content_hash,omitempty"`

	// Valid is false when required files are absent or empty after cleaning.
	Valid         bool   `json:"valid"`
	InvalidReason string `json:"invalid_reason,omitempty"`

	AnomalyTags []AnomalyTag `json:"anomaly_tags,omitempty"`
}

func (s *Submission) HasSource() bool {
	return len(s.SourceTokens) > 0
}

func (s *Submission) HasHex() bool {
	return len(s.HexData) > 0
}
