package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/labguard/detection-service/internal/models"
	"github.com/lib/pq"
)

type RunRepository interface {
	Create(ctx context.Context, run *models.DetectionRun) error
	GetByID(ctx context.Context, id string) (*models.DetectionRun, error)
	List(ctx context.Context, limit, offset int) ([]models.DetectionRun, int, error)
	UpdateStatus(ctx context.Context, id, status string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Complete(ctx context.Context, run *models.DetectionRun) error
	SaveResults(ctx context.Context, runID string, records []*models.ComparisonRecord, invalid []models.InvalidSubmission) error
	GetResults(ctx context.Context, runID string) ([]*models.ComparisonRecord, []models.InvalidSubmission, error)
	GetStats(ctx context.Context) (*models.ServiceStats, error)
	Ping(ctx context.Context) error
}

type runRepository struct {
	*PostgresRepository
}

func NewRunRepository(db *sql.DB, logger zerolog.Logger) RunRepository {
	return &runRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *runRepository) Create(ctx context.Context, run *models.DetectionRun) error {
	query := `
		INSERT INTO detection_runs (
			id, lab_name, status, filter_mode, submission_count, pair_count,
			candidate_count, plagiarized_count, invalid_count, error,
			processing_time_ms, created_at, started_at, completed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.LabName,
		run.Status,
		run.FilterMode,
		run.SubmissionCount,
		run.PairCount,
		run.CandidateCount,
		run.PlagiarizedCount,
		run.InvalidCount,
		run.Error,
		run.ProcessingTimeMs,
		run.CreatedAt,
		run.StartedAt,
		run.CompletedAt,
		run.UpdatedAt,
	)

	return err
}

func (r *runRepository) GetByID(ctx context.Context, id string) (*models.DetectionRun, error) {
	query := `
		SELECT
			id, lab_name, status, filter_mode, submission_count, pair_count,
			candidate_count, plagiarized_count, invalid_count, error,
			processing_time_ms, created_at, started_at, completed_at, updated_at
		FROM detection_runs
		WHERE id = $1
	`

	run := &models.DetectionRun{}
	var errMsg sql.NullString
	var processingTimeMs sql.NullInt64

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID,
		&run.LabName,
		&run.Status,
		&run.FilterMode,
		&run.SubmissionCount,
		&run.PairCount,
		&run.CandidateCount,
		&run.PlagiarizedCount,
		&run.InvalidCount,
		&errMsg,
		&processingTimeMs,
		&run.CreatedAt,
		&run.StartedAt,
		&run.CompletedAt,
		&run.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if errMsg.Valid {
		run.Error = errMsg.String
	}
	if processingTimeMs.Valid {
		ms := int(processingTimeMs.Int64)
		run.ProcessingTimeMs = &ms
	}

	return run, nil
}

func (r *runRepository) List(ctx context.Context, limit, offset int) ([]models.DetectionRun, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM detection_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `
		SELECT
			id, lab_name, status, filter_mode, submission_count, pair_count,
			candidate_count, plagiarized_count, invalid_count, error,
			processing_time_ms, created_at, started_at, completed_at, updated_at
		FROM detection_runs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []models.DetectionRun
	for rows.Next() {
		var run models.DetectionRun
		var errMsg sql.NullString
		var processingTimeMs sql.NullInt64

		if err := rows.Scan(
			&run.ID,
			&run.LabName,
			&run.Status,
			&run.FilterMode,
			&run.SubmissionCount,
			&run.PairCount,
			&run.CandidateCount,
			&run.PlagiarizedCount,
			&run.InvalidCount,
			&errMsg,
			&processingTimeMs,
			&run.CreatedAt,
			&run.StartedAt,
			&run.CompletedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}

		if errMsg.Valid {
			run.Error = errMsg.String
		}
		if processingTimeMs.Valid {
			ms := int(processingTimeMs.Int64)
			run.ProcessingTimeMs = &ms
		}

		runs = append(runs, run)
	}

	return runs, total, rows.Err()
}

func (r *runRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE detection_runs SET status = $2, updated_at = $3 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, query, id, status, time.Now())
	return err
}

func (r *runRepository) MarkFailed(ctx context.Context, id, errMsg string) error {
	query := `
		UPDATE detection_runs
		SET status = $2, error = $3, completed_at = $4, updated_at = $4
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, id, models.RunStatusFailed.String(), errMsg, time.Now())
	return err
}

func (r *runRepository) Complete(ctx context.Context, run *models.DetectionRun) error {
	query := `
		UPDATE detection_runs
		SET status = $2, submission_count = $3, pair_count = $4,
			candidate_count = $5, plagiarized_count = $6, invalid_count = $7,
			processing_time_ms = $8, started_at = $9, completed_at = $10,
			updated_at = $11
		WHERE id = $1
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.SubmissionCount,
		run.PairCount,
		run.CandidateCount,
		run.PlagiarizedCount,
		run.InvalidCount,
		run.ProcessingTimeMs,
		run.StartedAt,
		run.CompletedAt,
		run.UpdatedAt,
	)

	return err
}

func (r *runRepository) SaveResults(ctx context.Context, runID string, records []*models.ComparisonRecord, invalid []models.InvalidSubmission) error {
	recordQuery := `
		INSERT INTO comparison_results (
			run_id, student_a, student_b, source_lcs, source_levenshtein,
			hex_lcs, hex_levenshtein, aggregate_source, candidate, verdict,
			reasoning, judge_consulted, invalid_students, anomaly_tags_a,
			anomaly_tags_b, matching_fragments, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		)
	`

	invalidQuery := `
		INSERT INTO invalid_submissions (run_id, student_id, reason, created_at)
		VALUES ($1, $2, $3, $4)
	`

	now := time.Now()
	return r.WithinTx(ctx, func(tx *sql.Tx) error {
		for _, rec := range records {
			tagsA, err := json.Marshal(rec.AnomalyTagsA)
			if err != nil {
				return fmt.Errorf("failed to marshal anomaly tags: %w", err)
			}
			tagsB, err := json.Marshal(rec.AnomalyTagsB)
			if err != nil {
				return fmt.Errorf("failed to marshal anomaly tags: %w", err)
			}
			fragments, err := json.Marshal(rec.MatchingFragments)
			if err != nil {
				return fmt.Errorf("failed to marshal matching fragments: %w", err)
			}

			if _, err := tx.ExecContext(ctx, recordQuery,
				runID,
				rec.StudentA,
				rec.StudentB,
				rec.Scores.Source.LCS,
				rec.Scores.Source.Levenshtein,
				rec.Scores.Hex.LCS,
				rec.Scores.Hex.Levenshtein,
				rec.AggregateSource,
				rec.Candidate,
				string(rec.Verdict),
				rec.Reasoning,
				rec.JudgeConsulted,
				pq.Array(rec.InvalidStudents),
				tagsA,
				tagsB,
				fragments,
				now,
			); err != nil {
				return fmt.Errorf("failed to insert comparison result: %w", err)
			}
		}

		for _, inv := range invalid {
			if _, err := tx.ExecContext(ctx, invalidQuery, runID, inv.StudentID, inv.Reason, now); err != nil {
				return fmt.Errorf("failed to insert invalid submission: %w", err)
			}
		}
		return nil
	})
}

func (r *runRepository) GetResults(ctx context.Context, runID string) ([]*models.ComparisonRecord, []models.InvalidSubmission, error) {
	query := `
		SELECT
			student_a, student_b, source_lcs, source_levenshtein, hex_lcs,
			hex_levenshtein, aggregate_source, candidate, verdict, reasoning,
			judge_consulted, invalid_students, anomaly_tags_a, anomaly_tags_b,
			matching_fragments
		FROM comparison_results
		WHERE run_id = $1
		ORDER BY GREATEST(aggregate_source, hex_levenshtein) DESC, student_a, student_b
	`

	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var records []*models.ComparisonRecord
	for rows.Next() {
		rec := &models.ComparisonRecord{}
		var verdict string
		var tagsA, tagsB, fragments []byte

		if err := rows.Scan(
			&rec.StudentA,
			&rec.StudentB,
			&rec.Scores.Source.LCS,
			&rec.Scores.Source.Levenshtein,
			&rec.Scores.Hex.LCS,
			&rec.Scores.Hex.Levenshtein,
			&rec.AggregateSource,
			&rec.Candidate,
			&verdict,
			&rec.Reasoning,
			&rec.JudgeConsulted,
			pq.Array(&rec.InvalidStudents),
			&tagsA,
			&tagsB,
			&fragments,
		); err != nil {
			return nil, nil, err
		}

		rec.Verdict = models.Verdict(verdict)
		if len(tagsA) > 0 {
			if err := json.Unmarshal(tagsA, &rec.AnomalyTagsA); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to unmarshal anomaly tags")
			}
		}
		if len(tagsB) > 0 {
			if err := json.Unmarshal(tagsB, &rec.AnomalyTagsB); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to unmarshal anomaly tags")
			}
		}
		if len(fragments) > 0 {
			if err := json.Unmarshal(fragments, &rec.MatchingFragments); err != nil {
				r.logger.Warn().Err(err).Msg("Failed to unmarshal matching fragments")
			}
		}

		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	invalidQuery := `
		SELECT student_id, reason
		FROM invalid_submissions
		WHERE run_id = $1
		ORDER BY student_id
	`

	invRows, err := r.db.QueryContext(ctx, invalidQuery, runID)
	if err != nil {
		return nil, nil, err
	}
	defer invRows.Close()

	var invalid []models.InvalidSubmission
	for invRows.Next() {
		var inv models.InvalidSubmission
		if err := invRows.Scan(&inv.StudentID, &inv.Reason); err != nil {
			return nil, nil, err
		}
		invalid = append(invalid, inv)
	}

	return records, invalid, invRows.Err()
}

func (r *runRepository) GetStats(ctx context.Context) (*models.ServiceStats, error) {
	stats := &models.ServiceStats{}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
			COALESCE(AVG(processing_time_ms) FILTER (WHERE processing_time_ms IS NOT NULL), 0)
		FROM detection_runs
	`
	if err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalRuns,
		&stats.CompletedRuns,
		&stats.PendingRuns,
		&stats.AvgProcessingMs,
	); err != nil {
		return nil, err
	}

	pairQuery := `SELECT COUNT(*) FROM comparison_results WHERE verdict = 'plagiarized'`
	if err := r.db.QueryRowContext(ctx, pairQuery).Scan(&stats.PlagiarizedPairs); err != nil {
		return nil, err
	}

	return stats, nil
}
