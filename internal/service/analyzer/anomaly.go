package analyzer

import (
	"fmt"
	"strings"

	"github.com/labguard/detection-service/internal/models"
	"github.com/labguard/detection-service/internal/preprocessor"
	"github.com/rs/zerolog"
)

// AnomalyConfig bounds the structural checks run per submission.
type AnomalyConfig struct {
	MinInstructions     int
	KeyInstructions     []string
	CommentRatioCeiling float64
	BlankRatioCeiling   float64
	MinHexBytes         int
	HexLengthLowRatio   float64
	HexLengthHighRatio  float64
}

func DefaultAnomalyConfig() AnomalyConfig {
	return AnomalyConfig{
		MinInstructions:     3,
		KeyInstructions:     []string{"org", "end"},
		CommentRatioCeiling: 0.5,
		BlankRatioCeiling:   0.5,
		MinHexBytes:         16,
		HexLengthLowRatio:   0.6,
		HexLengthHighRatio:  1.4,
	}
}

// AnomalyDetector runs structural validity checks on a single submission.
// It never compares submissions against each other; the cohort median hex
// length is the only cross-submission input and is computed by the caller.
// All checks run to completion and every failure appends one tag.
type AnomalyDetector struct {
	cfg    AnomalyConfig
	logger zerolog.Logger
}

func NewAnomalyDetector(cfg AnomalyConfig, logger zerolog.Logger) *AnomalyDetector {
	return &AnomalyDetector{cfg: cfg, logger: logger}
}

// CheckSource inspects raw (uncleaned) source text. Comment and blank
// ratios only make sense before comment stripping, so this runs on the
// original content, not the cleaned token stream.
func (d *AnomalyDetector) CheckSource(content string, kind preprocessor.SourceKind) []models.AnomalyTag {
	var tags []models.AnomalyTag

	lines := strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n")
	total := len(lines)

	var blank, comment, instructions int
	mnemonics := make(map[string]bool)

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		switch {
		case trimmed == "":
			blank++
		case isCommentLine(trimmed, kind):
			comment++
		default:
			instructions++
			fields := strings.Fields(strings.ToLower(trimmed))
			if len(fields) > 0 {
				mnemonics[fields[0]] = true
			}
		}
	}

	if instructions < d.cfg.MinInstructions {
		tags = append(tags, models.AnomalyTag{
			Kind:   models.AnomalyTooFewInstructions,
			Detail: fmt.Sprintf("found %d instructions, expected at least %d", instructions, d.cfg.MinInstructions),
		})
	}

	// Key directives are an assembly concept; C submissions are compiled
	// or cleaned instead.
	if kind == preprocessor.KindAssembly {
		for _, key := range d.cfg.KeyInstructions {
			if !mnemonics[strings.ToLower(key)] {
				tags = append(tags, models.AnomalyTag{
					Kind:   models.AnomalyMissingKeyInstruction,
					Detail: fmt.Sprintf("required instruction %q not found", key),
				})
			}
		}
	}

	if total > 0 {
		if ratio := float64(comment) / float64(total); ratio > d.cfg.CommentRatioCeiling {
			tags = append(tags, models.AnomalyTag{
				Kind:   models.AnomalyExcessiveCommentRatio,
				Detail: fmt.Sprintf("comment ratio %.2f exceeds ceiling %.2f", ratio, d.cfg.CommentRatioCeiling),
			})
		}
		if ratio := float64(blank) / float64(total); ratio > d.cfg.BlankRatioCeiling {
			tags = append(tags, models.AnomalyTag{
				Kind:   models.AnomalyExcessiveBlankRatio,
				Detail: fmt.Sprintf("blank line ratio %.2f exceeds ceiling %.2f", ratio, d.cfg.BlankRatioCeiling),
			})
		}
	}

	return tags
}

// CheckHex inspects the parsed hex stream of one submission. medianLen is
// the cohort median payload length, 0 when unknown (single submission).
func (d *AnomalyDetector) CheckHex(info preprocessor.HexInfo, payloadLen, medianLen int) []models.AnomalyTag {
	var tags []models.AnomalyTag

	if !info.HasEOF {
		tags = append(tags, models.AnomalyTag{
			Kind:   models.AnomalyMissingEOFMarker,
			Detail: "no end-of-file record (:00000001FF) found",
		})
	}

	for _, ferr := range info.FormatErrors {
		tags = append(tags, models.AnomalyTag{
			Kind:   models.AnomalyMalformedHexRecord,
			Detail: ferr,
		})
	}

	if payloadLen < d.cfg.MinHexBytes {
		tags = append(tags, models.AnomalyTag{
			Kind:   models.AnomalyInsufficientData,
			Detail: fmt.Sprintf("hex payload is %d bytes, expected at least %d", payloadLen, d.cfg.MinHexBytes),
		})
	}

	if medianLen > 0 {
		ratio := float64(payloadLen) / float64(medianLen)
		if ratio < d.cfg.HexLengthLowRatio {
			tags = append(tags, models.AnomalyTag{
				Kind:   models.AnomalyLengthOutlier,
				Detail: fmt.Sprintf("hex payload %d bytes is unusually short (cohort median %d)", payloadLen, medianLen),
			})
		} else if ratio > d.cfg.HexLengthHighRatio {
			tags = append(tags, models.AnomalyTag{
				Kind:   models.AnomalyLengthOutlier,
				Detail: fmt.Sprintf("hex payload %d bytes is unusually long (cohort median %d)", payloadLen, medianLen),
			})
		}
	}

	return tags
}

func isCommentLine(trimmed string, kind preprocessor.SourceKind) bool {
	switch kind {
	case preprocessor.KindAssembly:
		return strings.HasPrefix(trimmed, ";")
	case preprocessor.KindC:
		return strings.HasPrefix(trimmed, "//") ||
			strings.HasPrefix(trimmed, "/*") ||
			strings.HasPrefix(trimmed, "*")
	default:
		return strings.HasPrefix(trimmed, ";") || strings.HasPrefix(trimmed, "//")
	}
}
