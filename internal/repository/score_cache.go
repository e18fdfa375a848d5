package repository

import (
	"context"
	"database/sql"

	"github.com/rs/zerolog"

	"github.com/labguard/detection-service/internal/models"
)

// PostgresScoreCache persists memoized pair scores so repeated runs over
// overlapping cohorts skip the dynamic-programming passes. Keys are
// content-hash pairs, so a miss is always safe and a storage error is
// downgraded to a miss.
type PostgresScoreCache struct {
	*PostgresRepository
}

func NewPostgresScoreCache(db *sql.DB, logger zerolog.Logger) *PostgresScoreCache {
	return &PostgresScoreCache{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (c *PostgresScoreCache) Get(ctx context.Context, key string) (*models.PairScores, bool) {
	query := `
		SELECT source_lcs, source_levenshtein, hex_lcs, hex_levenshtein
		FROM pair_score_cache
		WHERE cache_key = $1
	`

	scores := &models.PairScores{}
	err := c.db.QueryRowContext(ctx, query, key).Scan(
		&scores.Source.LCS,
		&scores.Source.Levenshtein,
		&scores.Hex.LCS,
		&scores.Hex.Levenshtein,
	)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("Score cache lookup failed, treating as miss")
		return nil, false
	}

	return scores, true
}

func (c *PostgresScoreCache) Put(ctx context.Context, key string, scores models.PairScores) {
	query := `
		INSERT INTO pair_score_cache (cache_key, source_lcs, source_levenshtein, hex_lcs, hex_levenshtein)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (cache_key) DO NOTHING
	`

	_, err := c.db.ExecContext(ctx, query,
		key,
		scores.Source.LCS,
		scores.Source.Levenshtein,
		scores.Hex.LCS,
		scores.Hex.Levenshtein,
	)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to store pair scores in cache")
	}
}
