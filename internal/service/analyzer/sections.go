package analyzer

import (
	"strings"

	"github.com/labguard/detection-service/internal/models"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// MatchingFragments extracts stretches of text common to both cleaned
// sources, for display in the report. Fragments shorter than minLen
// characters are noise (shared mnemonics, single registers) and dropped.
// This is presentation data only; no verdict depends on it.
func MatchingFragments(a, b string, minLen int) []models.MatchFragment {
	if a == "" || b == "" {
		return nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(a, b, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var fragments []models.MatchFragment
	offsetA, offsetB := 0, 0
	for _, d := range diffs {
		n := len(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			if text := strings.TrimSpace(d.Text); len(text) >= minLen {
				fragments = append(fragments, models.MatchFragment{
					Text:    text,
					Length:  len(text),
					OffsetA: offsetA,
					OffsetB: offsetB,
				})
			}
			offsetA += n
			offsetB += n
		case diffmatchpatch.DiffDelete:
			offsetA += n
		case diffmatchpatch.DiffInsert:
			offsetB += n
		}
	}
	return fragments
}
