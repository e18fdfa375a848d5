package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/labguard/detection-service/internal/models"
	"github.com/labguard/detection-service/internal/reporter"
	"github.com/labguard/detection-service/internal/repository"
)

type ReportService interface {
	GetRunReport(ctx context.Context, runID string) (*models.DetectionResult, error)
	RenderMarkdown(ctx context.Context, runID string) ([]byte, error)
	ExportRun(ctx context.Context, runID, format string) ([]byte, string, error)
}

type reportService struct {
	runRepo repository.RunRepository
	logger  zerolog.Logger
}

func NewReportService(runRepo repository.RunRepository, logger zerolog.Logger) ReportService {
	return &reportService{
		runRepo: runRepo,
		logger:  logger,
	}
}

func (s *reportService) GetRunReport(ctx context.Context, runID string) (*models.DetectionResult, error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, nil
	}

	records, invalid, err := s.runRepo.GetResults(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run results: %w", err)
	}

	var candidates []*models.ComparisonRecord
	for _, rec := range records {
		if rec.Candidate {
			candidates = append(candidates, rec)
		}
	}

	result := &models.DetectionResult{
		RunID:              run.ID,
		LabName:            run.LabName,
		Status:             run.Status,
		SubmissionCount:    run.SubmissionCount,
		PairCount:          run.PairCount,
		Candidates:         candidates,
		InvalidSubmissions: invalid,
	}
	if run.ProcessingTimeMs != nil {
		result.ProcessingTimeMs = *run.ProcessingTimeMs
	}
	if run.CompletedAt != nil {
		result.CompletedAt = *run.CompletedAt
	}
	return result, nil
}

func (s *reportService) RenderMarkdown(ctx context.Context, runID string) ([]byte, error) {
	result, err := s.GetRunReport(ctx, runID)
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}

	var buf bytes.Buffer
	if err := reporter.NewMarkdownWriter(&buf).Write(result); err != nil {
		return nil, fmt.Errorf("failed to render markdown report: %w", err)
	}
	return buf.Bytes(), nil
}

// ExportRun serializes a run's results. Returns the body, its content
// type and an error; a nil body with nil error means the run is unknown.
func (s *reportService) ExportRun(ctx context.Context, runID, format string) ([]byte, string, error) {
	result, err := s.GetRunReport(ctx, runID)
	if err != nil {
		return nil, "", err
	}
	if result == nil {
		return nil, "", nil
	}

	switch format {
	case "json":
		body, err := json.MarshalIndent(result, "", "  ")
		return body, "application/json", err
	case "csv":
		return s.exportCSV(result), "text/csv", nil
	case "markdown", "md":
		var buf bytes.Buffer
		if err := reporter.NewMarkdownWriter(&buf).Write(result); err != nil {
			return nil, "", fmt.Errorf("failed to render markdown report: %w", err)
		}
		return buf.Bytes(), "text/markdown", nil
	default:
		return nil, "", fmt.Errorf("unsupported export format: %s", format)
	}
}

func (s *reportService) exportCSV(result *models.DetectionResult) []byte {
	var buf bytes.Buffer
	buf.WriteString("Student A,Student B,Token LCS,Source Levenshtein,Hex LCS,Hex Levenshtein,Aggregate,Verdict,Judge Consulted,Completed At\n")

	completedAt := result.CompletedAt.Format(time.RFC3339)
	for _, rec := range result.Candidates {
		fmt.Fprintf(&buf, "%s,%s,%.4f,%.4f,%.4f,%.4f,%.4f,%s,%v,%s\n",
			rec.StudentA,
			rec.StudentB,
			rec.Scores.Source.LCS,
			rec.Scores.Source.Levenshtein,
			rec.Scores.Hex.LCS,
			rec.Scores.Hex.Levenshtein,
			rec.AggregateSource,
			rec.Verdict,
			rec.JudgeConsulted,
			completedAt,
		)
	}
	return buf.Bytes()
}
