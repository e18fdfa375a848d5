package analyzer

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/labguard/detection-service/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ScoreCache memoizes pair scores across repeated runs. Keys are derived
// from the content hashes of the two streams, not from student IDs, since
// identifiers can be reused across assignments while content is the real
// identity of a comparison.
type ScoreCache interface {
	Get(ctx context.Context, key string) (*models.PairScores, bool)
	Put(ctx context.Context, key string, scores models.PairScores)
}

// MemoryScoreCache is the in-process ScoreCache.
type MemoryScoreCache struct {
	mu     sync.RWMutex
	scores map[string]models.PairScores
}

func NewMemoryScoreCache() *MemoryScoreCache {
	return &MemoryScoreCache{scores: make(map[string]models.PairScores)}
}

func (c *MemoryScoreCache) Get(ctx context.Context, key string) (*models.PairScores, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.scores[key]
	if !ok {
		return nil, false
	}
	return &s, true
}

func (c *MemoryScoreCache) Put(ctx context.Context, key string, scores models.PairScores) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[key] = scores
}

// Comparator scores every qualifying unordered pair of submissions on
// both channels with both algorithms. Pairs depend only on the two
// submissions involved, so scoring fans out across a bounded worker set
// with no shared mutable state beyond the read-only submission list.
type Comparator struct {
	maxWorkers int
	cache      ScoreCache
	logger     zerolog.Logger
}

func NewComparator(maxWorkers int, cache ScoreCache, logger zerolog.Logger) *Comparator {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Comparator{maxWorkers: maxWorkers, cache: cache, logger: logger}
}

// Compare produces exactly one record per unordered pair where at least
// one channel is non-empty on both sides. Pairs unusable on every channel
// are skipped entirely; their submissions still surface through the
// invalid-submission listing, which is independent of pairwise work.
func (c *Comparator) Compare(ctx context.Context, subs []*models.Submission) ([]*models.ComparisonRecord, error) {
	// Deterministic pair order regardless of input permutation.
	ordered := make([]*models.Submission, len(subs))
	copy(ordered, subs)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StudentID < ordered[j].StudentID
	})

	type pair struct{ a, b *models.Submission }
	var pairs []pair
	for i := 0; i < len(ordered); i++ {
		for j := i + 1; j < len(ordered); j++ {
			a, b := ordered[i], ordered[j]
			if (a.HasSource() && b.HasSource()) || (a.HasHex() && b.HasHex()) {
				pairs = append(pairs, pair{a, b})
			}
		}
	}

	records := make([]*models.ComparisonRecord, len(pairs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)

	for idx, p := range pairs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			records[idx] = c.compareOne(gctx, p.a, p.b)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	c.logger.Info().
		Int("submissions", len(subs)).
		Int("pairs", len(pairs)).
		Msg("Pairwise comparison completed")

	return records, nil
}

func (c *Comparator) compareOne(ctx context.Context, a, b *models.Submission) *models.ComparisonRecord {
	rec := &models.ComparisonRecord{
		StudentA:     a.StudentID,
		StudentB:     b.StudentID,
		AnomalyTagsA: a.AnomalyTags,
		AnomalyTagsB: b.AnomalyTags,
	}
	if !a.Valid {
		rec.InvalidStudents = append(rec.InvalidStudents, a.StudentID)
	}
	if !b.Valid {
		rec.InvalidStudents = append(rec.InvalidStudents, b.StudentID)
	}

	key := cacheKey(a.ContentHash, b.ContentHash)
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, key); ok {
			rec.Scores = *cached
			rec.AggregateSource = cached.AggregateSource()
			return rec
		}
	}

	var scores models.PairScores
	if a.HasSource() && b.HasSource() {
		scores.Source.LCS = SequenceSimilarity(a.SourceTokens, b.SourceTokens)
		scores.Source.Levenshtein = EditSimilarity([]rune(a.SourceText), []rune(b.SourceText))
	}
	if a.HasHex() && b.HasHex() {
		scores.Hex.LCS = SequenceSimilarity(a.HexData, b.HexData)
		scores.Hex.Levenshtein = EditSimilarity(a.HexData, b.HexData)
	}

	rec.Scores = scores
	rec.AggregateSource = scores.AggregateSource()

	if c.cache != nil {
		c.cache.Put(ctx, key, scores)
	}
	return rec
}

func cacheKey(hashA, hashB string) string {
	if strings.Compare(hashA, hashB) <= 0 {
		return hashA + ":" + hashB
	}
	return hashB + ":" + hashA
}
