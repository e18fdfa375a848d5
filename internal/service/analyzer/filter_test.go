package analyzer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/labguard/detection-service/internal/models"
)

func record(a, b string, srcLCS, srcLev, hexLev float64) *models.ComparisonRecord {
	rec := &models.ComparisonRecord{
		StudentA: a,
		StudentB: b,
		Scores: models.PairScores{
			Source: models.ChannelScores{LCS: srcLCS, Levenshtein: srcLev},
			Hex:    models.ChannelScores{Levenshtein: hexLev},
		},
	}
	rec.AggregateSource = rec.Scores.AggregateSource()
	return rec
}

func TestFilterConfigValidate(t *testing.T) {
	t.Run("DefaultIsValid", func(t *testing.T) {
		assert.NoError(t, DefaultFilterConfig().Validate())
	})

	t.Run("UnknownMode", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.Mode = "both"
		assert.Error(t, cfg.Validate())
	})

	t.Run("ThresholdOutOfRange", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.SourceThreshold = 1.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("TopPercentZero", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.Mode = FilterModeTopPercent
		cfg.TopPercent = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("UnknownMetric", func(t *testing.T) {
		cfg := DefaultFilterConfig()
		cfg.Mode = FilterModeTopPercent
		cfg.Metric = "jaccard"
		assert.Error(t, cfg.Validate())
	})
}

func TestThresholdFilter(t *testing.T) {
	f, err := NewCandidateFilter(DefaultFilterConfig())
	require.NoError(t, err)

	t.Run("SourceAboveThreshold", func(t *testing.T) {
		recs := []*models.ComparisonRecord{record("s1", "s2", 0.9, 0.9, 0.0)}
		out := f.Select(recs)
		require.Len(t, out, 1)
		assert.True(t, out[0].Candidate)
	})

	t.Run("HexAboveThreshold", func(t *testing.T) {
		recs := []*models.ComparisonRecord{record("s1", "s2", 0.1, 0.1, 0.75)}
		out := f.Select(recs)
		assert.Len(t, out, 1)
	})

	t.Run("ExactlyAtThresholdExcluded", func(t *testing.T) {
		// Strictly greater than, not greater-or-equal.
		recs := []*models.ComparisonRecord{record("s1", "s2", 0.8, 0.8, 0.7)}
		out := f.Select(recs)
		assert.Empty(t, out)
		assert.False(t, recs[0].Candidate)
	})

	t.Run("BelowBothThresholds", func(t *testing.T) {
		recs := []*models.ComparisonRecord{record("s1", "s2", 0.5, 0.5, 0.5)}
		assert.Empty(t, f.Select(recs))
	})
}

func TestTopPercentFilter(t *testing.T) {
	newFilter := func(p float64, metric RankMetric) *CandidateFilter {
		f, err := NewCandidateFilter(FilterConfig{
			Mode:       FilterModeTopPercent,
			TopPercent: p,
			Metric:     metric,
		})
		require.NoError(t, err)
		return f
	}

	t.Run("CeilOfFraction", func(t *testing.T) {
		// 10% of 5 records rounds up to 1.
		f := newFilter(0.1, MetricAggregate)
		recs := []*models.ComparisonRecord{
			record("s1", "s2", 0.2, 0.2, 0),
			record("s1", "s3", 0.9, 0.9, 0),
			record("s1", "s4", 0.4, 0.4, 0),
			record("s2", "s3", 0.5, 0.5, 0),
			record("s2", "s4", 0.1, 0.1, 0),
		}
		out := f.Select(recs)
		require.Len(t, out, 1)
		assert.Equal(t, "s1|s3", out[0].PairID())
	})

	t.Run("AllWhenFullPercent", func(t *testing.T) {
		f := newFilter(1.0, MetricAggregate)
		recs := []*models.ComparisonRecord{
			record("s1", "s2", 0.2, 0.2, 0),
			record("s1", "s3", 0.9, 0.9, 0),
		}
		assert.Len(t, f.Select(recs), 2)
	})

	t.Run("OrderIndependent", func(t *testing.T) {
		f := newFilter(0.5, MetricAggregate)
		forward := []*models.ComparisonRecord{
			record("s1", "s2", 0.3, 0.3, 0),
			record("s1", "s3", 0.9, 0.9, 0),
			record("s2", "s3", 0.6, 0.6, 0),
			record("s2", "s4", 0.1, 0.1, 0),
		}
		reversed := []*models.ComparisonRecord{
			record("s2", "s4", 0.1, 0.1, 0),
			record("s2", "s3", 0.6, 0.6, 0),
			record("s1", "s3", 0.9, 0.9, 0),
			record("s1", "s2", 0.3, 0.3, 0),
		}

		idsOf := func(recs []*models.ComparisonRecord) []string {
			ids := make([]string, 0, len(recs))
			for _, r := range recs {
				ids = append(ids, r.PairID())
			}
			return ids
		}

		assert.Equal(t, idsOf(f.Select(forward)), idsOf(f.Select(reversed)))
	})

	t.Run("DeterministicTies", func(t *testing.T) {
		// Equal scores rank by pair identifier ascending.
		f := newFilter(0.5, MetricAggregate)
		recs := []*models.ComparisonRecord{
			record("s3", "s4", 0.5, 0.5, 0),
			record("s1", "s2", 0.5, 0.5, 0),
		}
		out := f.Select(recs)
		require.Len(t, out, 1)
		assert.Equal(t, "s1|s2", out[0].PairID())
	})

	t.Run("RankByTokenSequence", func(t *testing.T) {
		f := newFilter(0.5, MetricTokenSequence)
		recs := []*models.ComparisonRecord{
			record("s1", "s2", 0.9, 0.1, 0), // LCS winner
			record("s1", "s3", 0.2, 0.95, 0),
		}
		out := f.Select(recs)
		require.Len(t, out, 1)
		assert.Equal(t, "s1|s2", out[0].PairID())
	})

	t.Run("RankByLevenshtein", func(t *testing.T) {
		f := newFilter(0.5, MetricLevenshtein)
		recs := []*models.ComparisonRecord{
			record("s1", "s2", 0.9, 0.1, 0),
			record("s1", "s3", 0.2, 0.95, 0),
		}
		out := f.Select(recs)
		require.Len(t, out, 1)
		assert.Equal(t, "s1|s3", out[0].PairID())
	})
}
