package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/labguard/detection-service/internal/config"
	"github.com/labguard/detection-service/internal/models"
	"github.com/labguard/detection-service/internal/preprocessor"
	"github.com/labguard/detection-service/internal/repository"
	"github.com/labguard/detection-service/internal/service/analyzer"
	"github.com/labguard/detection-service/pkg/hash"
)

// Shared mnemonics and register names make short common stretches
// meaningless, so report fragments below this length are dropped.
const fragmentMinLen = 16

type DetectionService interface {
	Run(ctx context.Context, req *models.StartDetectionRequest) (*models.DetectionResult, error)
	RunAsync(ctx context.Context, req *models.StartDetectionRequest) (string, error)
	ExecuteRun(ctx context.Context, runID string, req *models.StartDetectionRequest) error
	GetRun(ctx context.Context, runID string) (*models.GetRunResponse, error)
	ListRuns(ctx context.Context, page, limit int) (*models.ListRunsResponse, error)
	GetRunResult(ctx context.Context, runID string) (*models.DetectionResult, error)
	GetStats(ctx context.Context) (*models.ServiceStats, error)
	GetServiceStatus(ctx context.Context) (*models.HealthCheckResponse, error)
}

type detectionService struct {
	runRepo    repository.RunRepository
	publisher  repository.RabbitMQRepository
	comparator *analyzer.Comparator
	filter     *analyzer.CandidateFilter
	resolver   *analyzer.Resolver
	detector   *analyzer.AnomalyDetector
	compiler   preprocessor.Compiler
	rabbitCfg  config.RabbitMQConfig
	filterMode string
	judgeOn    bool
	logger     zerolog.Logger
	startedAt  time.Time
}

func NewDetectionService(
	runRepo repository.RunRepository,
	publisher repository.RabbitMQRepository,
	comparator *analyzer.Comparator,
	filter *analyzer.CandidateFilter,
	resolver *analyzer.Resolver,
	detector *analyzer.AnomalyDetector,
	compiler preprocessor.Compiler,
	rabbitCfg config.RabbitMQConfig,
	filterMode string,
	judgeOn bool,
	logger zerolog.Logger,
) DetectionService {
	return &detectionService{
		runRepo:    runRepo,
		publisher:  publisher,
		comparator: comparator,
		filter:     filter,
		resolver:   resolver,
		detector:   detector,
		compiler:   compiler,
		rabbitCfg:  rabbitCfg,
		filterMode: filterMode,
		judgeOn:    judgeOn,
		logger:     logger,
		startedAt:  time.Now(),
	}
}

// Run executes a detection pass synchronously and returns the full result.
func (s *detectionService) Run(ctx context.Context, req *models.StartDetectionRequest) (*models.DetectionResult, error) {
	runID, err := s.createRun(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := s.ExecuteRun(ctx, runID, req); err != nil {
		return nil, err
	}

	return s.GetRunResult(ctx, runID)
}

// RunAsync records a pending run and hands the payload to the queue. The
// submissions travel in-band; nothing is fetched later.
func (s *detectionService) RunAsync(ctx context.Context, req *models.StartDetectionRequest) (string, error) {
	if s.publisher == nil {
		return "", fmt.Errorf("async detection requires a message queue connection")
	}

	runID, err := s.createRun(ctx, req)
	if err != nil {
		return "", err
	}

	event := models.DetectionRequestedEvent{
		RunID:     runID,
		Request:   *req,
		Timestamp: time.Now().Unix(),
	}

	if err := s.publisher.PublishEvent(ctx, s.rabbitCfg.Exchange, s.rabbitCfg.RoutingKey, event); err != nil {
		if markErr := s.runRepo.MarkFailed(ctx, runID, "failed to enqueue detection request"); markErr != nil {
			s.logger.Error().Err(markErr).Str("run_id", runID).Msg("Failed to mark run as failed")
		}
		return "", fmt.Errorf("failed to publish detection request: %w", err)
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("submissions", len(req.Submissions)).
		Msg("Async detection requested")

	return runID, nil
}

func (s *detectionService) createRun(ctx context.Context, req *models.StartDetectionRequest) (string, error) {
	if len(req.Submissions) < 2 {
		return "", fmt.Errorf("detection requires at least 2 submissions, got %d", len(req.Submissions))
	}

	seen := make(map[string]bool, len(req.Submissions))
	for _, sub := range req.Submissions {
		if sub.StudentID == "" {
			return "", fmt.Errorf("submission with empty student_id")
		}
		if seen[sub.StudentID] {
			return "", fmt.Errorf("duplicate student_id %q", sub.StudentID)
		}
		seen[sub.StudentID] = true
	}

	now := time.Now()
	run := &models.DetectionRun{
		ID:              uuid.New().String(),
		LabName:         req.LabName,
		Status:          models.RunStatusPending.String(),
		FilterMode:      s.filterMode,
		SubmissionCount: len(req.Submissions),
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.runRepo.Create(ctx, run); err != nil {
		return "", fmt.Errorf("failed to create detection run: %w", err)
	}

	return run.ID, nil
}

// ExecuteRun performs the full pipeline for an already-created run:
// preprocessing, pairwise scoring, candidate filtering, verdict
// resolution, persistence and the completion event.
func (s *detectionService) ExecuteRun(ctx context.Context, runID string, req *models.StartDetectionRequest) error {
	startTime := time.Now()

	if err := s.runRepo.UpdateStatus(ctx, runID, models.RunStatusProcessing.String()); err != nil {
		return fmt.Errorf("failed to mark run as processing: %w", err)
	}

	result, err := s.execute(ctx, req)
	if err != nil {
		s.failRun(ctx, runID, err)
		return err
	}

	processingMs := int(time.Since(startTime).Milliseconds())
	completedAt := time.Now()

	plagiarized := 0
	for _, rec := range result.records {
		if rec.Verdict == models.VerdictPlagiarized {
			plagiarized++
		}
	}

	run := &models.DetectionRun{
		ID:               runID,
		Status:           models.RunStatusCompleted.String(),
		SubmissionCount:  len(req.Submissions),
		PairCount:        len(result.records),
		CandidateCount:   result.candidateCount,
		PlagiarizedCount: plagiarized,
		InvalidCount:     len(result.invalid),
		ProcessingTimeMs: &processingMs,
		StartedAt:        &startTime,
		CompletedAt:      &completedAt,
		UpdatedAt:        completedAt,
	}

	if err := s.runRepo.SaveResults(ctx, runID, result.records, result.invalid); err != nil {
		s.failRun(ctx, runID, fmt.Errorf("failed to persist results: %w", err))
		return err
	}
	if err := s.runRepo.Complete(ctx, run); err != nil {
		return fmt.Errorf("failed to complete run: %w", err)
	}

	if s.publisher != nil {
		event := models.DetectionCompletedEvent{
			RunID:            runID,
			Status:           run.Status,
			CandidateCount:   run.CandidateCount,
			PlagiarizedCount: run.PlagiarizedCount,
			InvalidCount:     run.InvalidCount,
			ProcessingTimeMs: processingMs,
			CompletedAt:      completedAt,
		}
		if err := s.publisher.PublishEvent(ctx, s.rabbitCfg.Exchange, "detection.completed", event); err != nil {
			s.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to publish completion event")
		}
	}

	s.logger.Info().
		Str("run_id", runID).
		Int("pairs", run.PairCount).
		Int("candidates", run.CandidateCount).
		Int("plagiarized", run.PlagiarizedCount).
		Int("invalid", run.InvalidCount).
		Int("processing_time_ms", processingMs).
		Msg("Detection run completed")

	return nil
}

type pipelineResult struct {
	records        []*models.ComparisonRecord
	invalid        []models.InvalidSubmission
	candidateCount int
}

func (s *detectionService) execute(ctx context.Context, req *models.StartDetectionRequest) (*pipelineResult, error) {
	subs, invalid := s.buildSubmissions(ctx, req.Submissions)

	records, err := s.comparator.Compare(ctx, subs)
	if err != nil {
		return nil, fmt.Errorf("pairwise comparison failed: %w", err)
	}

	byID := make(map[string]*models.Submission, len(subs))
	for _, sub := range subs {
		byID[sub.StudentID] = sub
	}

	candidates := s.filter.Select(records)
	for _, rec := range candidates {
		a, b := byID[rec.StudentA], byID[rec.StudentB]
		s.resolver.Resolve(ctx, rec, a, b)
		if rec.Verdict == models.VerdictPlagiarized && a.HasSource() && b.HasSource() {
			rec.MatchingFragments = analyzer.MatchingFragments(a.SourceText, b.SourceText, fragmentMinLen)
		}
	}

	return &pipelineResult{
		records:        records,
		invalid:        invalid,
		candidateCount: len(candidates),
	}, nil
}

// buildSubmissions cleans each payload into a Submission and runs the
// structural anomaly checks. Anomaly tags are warnings only; a submission
// is invalid when either required channel is empty after cleaning. The
// pairwise stage still scores whatever content an invalid submission has,
// since plagiarism evidence outranks a missing deliverable.
func (s *detectionService) buildSubmissions(ctx context.Context, payloads []models.SubmissionPayload) ([]*models.Submission, []models.InvalidSubmission) {
	subs := make([]*models.Submission, 0, len(payloads))
	hexInfos := make([]preprocessor.HexInfo, len(payloads))
	hasHexFiles := make([]bool, len(payloads))

	for i, p := range payloads {
		sub := &models.Submission{StudentID: p.StudentID, Valid: true}

		var cleanedParts []string
		for _, f := range p.SourceFiles {
			kind := preprocessor.KindFromName(f.Name)
			sub.AnomalyTags = append(sub.AnomalyTags, s.detector.CheckSource(f.Content, kind)...)

			content := f.Content
			// C entries are compared at the assembly level when a compiler
			// is configured. A compile failure empties this entry's source
			// channel; an unavailable compiler compares the C text itself.
			if kind == preprocessor.KindC && s.compiler != nil {
				asm, err := s.compiler.Compile(ctx, f.Content)
				switch {
				case err == nil:
					content, kind = asm, preprocessor.KindAssembly
				case !errors.Is(err, preprocessor.ErrCompilerUnavailable):
					s.logger.Warn().Err(err).Str("student_id", p.StudentID).Str("file", f.Name).Msg("C compilation failed, dropping source entry")
					content = ""
				}
			}

			if cleaned := preprocessor.CleanSource(content, kind); cleaned != "" {
				cleanedParts = append(cleanedParts, cleaned)
			}
		}
		sub.SourceText = strings.Join(cleanedParts, " ")
		sub.SourceTokens = preprocessor.Tokenize(sub.SourceText)

		for _, f := range p.HexFiles {
			payload, info := preprocessor.NormalizeHex(f.Content)
			sub.HexData = append(sub.HexData, payload...)
			hexInfos[i].RecordCount += info.RecordCount
			hexInfos[i].HasEOF = hexInfos[i].HasEOF || info.HasEOF
			hexInfos[i].FormatErrors = append(hexInfos[i].FormatErrors, info.FormatErrors...)
		}
		hasHexFiles[i] = len(p.HexFiles) > 0

		sub.ContentHash = hash.Content(sub.SourceText, sub.HexData)
		subs = append(subs, sub)
	}

	// The length-outlier check needs the cohort median, so the hex checks
	// run after every payload is parsed.
	median := medianHexLength(subs)
	for i, sub := range subs {
		if hasHexFiles[i] {
			sub.AnomalyTags = append(sub.AnomalyTags, s.detector.CheckHex(hexInfos[i], len(sub.HexData), median)...)
		}
	}

	var invalid []models.InvalidSubmission
	for _, sub := range subs {
		var reasons []string
		if !sub.HasSource() {
			reasons = append(reasons, "no usable source content after cleaning")
		}
		if !sub.HasHex() {
			reasons = append(reasons, "no usable hex output")
		}
		if len(reasons) > 0 {
			sub.Valid = false
			sub.InvalidReason = strings.Join(reasons, " | ")
			invalid = append(invalid, models.InvalidSubmission{
				StudentID: sub.StudentID,
				Reason:    sub.InvalidReason,
			})
		}
	}

	sort.Slice(invalid, func(i, j int) bool { return invalid[i].StudentID < invalid[j].StudentID })
	return subs, invalid
}

func medianHexLength(subs []*models.Submission) int {
	var lengths []int
	for _, sub := range subs {
		if sub.HasHex() {
			lengths = append(lengths, len(sub.HexData))
		}
	}
	if len(lengths) == 0 {
		return 0
	}
	sort.Ints(lengths)
	mid := len(lengths) / 2
	if len(lengths)%2 == 0 {
		return (lengths[mid-1] + lengths[mid]) / 2
	}
	return lengths[mid]
}

func (s *detectionService) failRun(ctx context.Context, runID string, cause error) {
	s.logger.Error().Err(cause).Str("run_id", runID).Msg("Detection run failed")

	if err := s.runRepo.MarkFailed(ctx, runID, cause.Error()); err != nil {
		s.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to mark run as failed")
	}

	if s.publisher != nil {
		event := models.DetectionFailedEvent{
			RunID:    runID,
			Error:    cause.Error(),
			FailedAt: time.Now(),
		}
		if err := s.publisher.PublishEvent(ctx, s.rabbitCfg.Exchange, "detection.failed", event); err != nil {
			s.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to publish failure event")
		}
	}
}

func (s *detectionService) GetRun(ctx context.Context, runID string) (*models.GetRunResponse, error) {
	run, err := s.runRepo.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	if run == nil {
		return nil, nil
	}
	resp := runToResponse(run)
	return &resp, nil
}

func (s *detectionService) ListRuns(ctx context.Context, page, limit int) (*models.ListRunsResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	runs, total, err := s.runRepo.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	resp := &models.ListRunsResponse{
		Runs:       make([]models.GetRunResponse, 0, len(runs)),
		Total:      total,
		Page:       page,
		Limit:      limit,
		TotalPages: (total + limit - 1) / limit,
	}
	for i := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&runs[i]))
	}
	return resp, nil
}

func (s *detectionService) GetRunResult(ctx context.Context, runID string) (*models.DetectionResult, error) {
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

func (s *detectionService) GetStats(ctx context.Context) (*models.ServiceStats, error) {
	return s.runRepo.GetStats(ctx)
}

func (s *detectionService) GetServiceStatus(ctx context.Context) (*models.HealthCheckResponse, error) {
	dbOK := true
	if err := s.runRepo.Ping(ctx); err != nil {
		dbOK = false
		s.logger.Error().Err(err).Msg("Database health check failed")
	}

	mqOK := s.publisher != nil && s.publisher.IsConnected()

	resp := &models.HealthCheckResponse{
		Status:       "healthy",
		Database:     dbOK,
		RabbitMQ:     mqOK,
		JudgeEnabled: s.judgeOn,
		Uptime:       time.Since(s.startedAt).Round(time.Second).String(),
		Timestamp:    time.Now(),
	}
	if !dbOK {
		resp.Status = "degraded"
	}
	return resp, nil
}

func runToResponse(run *models.DetectionRun) models.GetRunResponse {
	return models.GetRunResponse{
		RunID:            run.ID,
		LabName:          run.LabName,
		Status:           run.Status,
		FilterMode:       run.FilterMode,
		SubmissionCount:  run.SubmissionCount,
		PairCount:        run.PairCount,
		CandidateCount:   run.CandidateCount,
		PlagiarizedCount: run.PlagiarizedCount,
		InvalidCount:     run.InvalidCount,
		Error:            run.Error,
		ProcessingTimeMs: run.ProcessingTimeMs,
		CreatedAt:        run.CreatedAt,
		CompletedAt:      run.CompletedAt,
	}
}
