package analyzer

import (
	"fmt"
	"math"
	"sort"

	"github.com/labguard/detection-service/internal/models"
)

type FilterMode string

const (
	FilterModeThreshold  FilterMode = "threshold"
	FilterModeTopPercent FilterMode = "top_percent"
)

type RankMetric string

const (
	MetricAggregate     RankMetric = "aggregate"
	MetricTokenSequence RankMetric = "token_sequence"
	MetricLevenshtein   RankMetric = "levenshtein"
)

// FilterConfig selects one of two mutually exclusive candidate policies.
type FilterConfig struct {
	Mode FilterMode

	// Threshold policy.
	SourceThreshold float64
	HexThreshold    float64

	// Top-percent policy.
	TopPercent float64
	Metric     RankMetric
}

func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		Mode:            FilterModeThreshold,
		SourceThreshold: 0.8,
		HexThreshold:    0.7,
		TopPercent:      0.1,
		Metric:          MetricAggregate,
	}
}

// Validate rejects bad configuration before any comparison work begins.
func (c FilterConfig) Validate() error {
	switch c.Mode {
	case FilterModeThreshold:
		if c.SourceThreshold < 0 || c.SourceThreshold > 1 {
			return fmt.Errorf("source threshold %v out of range [0,1]", c.SourceThreshold)
		}
		if c.HexThreshold < 0 || c.HexThreshold > 1 {
			return fmt.Errorf("hex threshold %v out of range [0,1]", c.HexThreshold)
		}
	case FilterModeTopPercent:
		if c.TopPercent <= 0 || c.TopPercent > 1 {
			return fmt.Errorf("top percent %v out of range (0,1]", c.TopPercent)
		}
		switch c.Metric {
		case MetricAggregate, MetricTokenSequence, MetricLevenshtein:
		default:
			return fmt.Errorf("unknown rank metric %q", c.Metric)
		}
	default:
		return fmt.Errorf("unknown filter mode %q", c.Mode)
	}
	return nil
}

// CandidateFilter selects which comparison records are suspicious enough
// to reach verdict resolution. Non-candidates are retained for reporting
// totals but never resolved.
type CandidateFilter struct {
	cfg FilterConfig
}

func NewCandidateFilter(cfg FilterConfig) (*CandidateFilter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &CandidateFilter{cfg: cfg}, nil
}

// Select marks and returns the candidate subset. The returned slice
// shares record pointers with the input; only the Candidate flag is set.
func (f *CandidateFilter) Select(records []*models.ComparisonRecord) []*models.ComparisonRecord {
	if f.cfg.Mode == FilterModeThreshold {
		var out []*models.ComparisonRecord
		for _, rec := range records {
			if rec.AggregateSource > f.cfg.SourceThreshold || rec.Scores.Hex.Levenshtein > f.cfg.HexThreshold {
				rec.Candidate = true
				out = append(out, rec)
			}
		}
		return out
	}

	// Top-percent policy: stable rank by the configured metric descending
	// with the pair identifier as tiebreak, so identical input always
	// yields the identical candidate set.
	ranked := make([]*models.ComparisonRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := f.metric(ranked[i]), f.metric(ranked[j])
		if si != sj {
			return si > sj
		}
		return ranked[i].PairID() < ranked[j].PairID()
	})

	take := int(math.Ceil(f.cfg.TopPercent * float64(len(ranked))))
	if take > len(ranked) {
		take = len(ranked)
	}
	out := ranked[:take]
	for _, rec := range out {
		rec.Candidate = true
	}
	return out
}

func (f *CandidateFilter) metric(rec *models.ComparisonRecord) float64 {
	switch f.cfg.Metric {
	case MetricTokenSequence:
		return rec.Scores.Source.LCS
	case MetricLevenshtein:
		return rec.Scores.Source.Levenshtein
	default:
		return rec.AggregateSource
	}
}
