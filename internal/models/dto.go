package models

import "time"

// Data Transfer Objects

// SourceFile is one raw source file as submitted by a student. The name
// is only used to pick the cleaning rules (.a51/.asm vs .c).
type SourceFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type SubmissionPayload struct {
	StudentID   string       `json:"student_id" validate:"required"`
	SourceFiles []SourceFile `json:"source_files,omitempty"`
	HexFiles    []SourceFile `json:"hex_files,omitempty"`
}

type StartDetectionRequest struct {
	LabName     string              `json:"lab_name"`
	Submissions []SubmissionPayload `json:"submissions" validate:"required"`
}

type StartDetectionResponse struct {
	RunID     string `json:"run_id"`
	Status    string `json:"status"`
	StatusURL string `json:"status_url"`
}

type GetRunResponse struct {
	RunID            string     `json:"run_id"`
	LabName          string     `json:"lab_name"`
	Status           string     `json:"status"`
	FilterMode       string     `json:"filter_mode"`
	SubmissionCount  int        `json:"submission_count"`
	PairCount        int        `json:"pair_count"`
	CandidateCount   int        `json:"candidate_count"`
	PlagiarizedCount int        `json:"plagiarized_count"`
	InvalidCount     int        `json:"invalid_count"`
	Error            string     `json:"error,omitempty"`
	ProcessingTimeMs *int       `json:"processing_time_ms,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

type ListRunsResponse struct {
	Runs       []GetRunResponse `json:"runs"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}

type ServiceStats struct {
	TotalRuns        int64   `json:"total_runs"`
	CompletedRuns    int64   `json:"completed_runs"`
	PendingRuns      int64   `json:"pending_runs"`
	PlagiarizedPairs int64   `json:"plagiarized_pairs"`
	AvgProcessingMs  float64 `json:"avg_processing_ms"`
}

type HealthCheckResponse struct {
	Status        string    `json:"status"`
	Database      bool      `json:"database"`
	RabbitMQ      bool      `json:"rabbitmq"`
	JudgeEnabled  bool      `json:"judge_enabled"`
	ActiveWorkers int       `json:"active_workers"`
	QueueLength   int       `json:"queue_length"`
	Uptime        string    `json:"uptime"`
	Timestamp     time.Time `json:"timestamp"`
}
