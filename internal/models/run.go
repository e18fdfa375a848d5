package models

import "time"

type RunStatus string

const (
	RunStatusPending    RunStatus = "pending"
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

func (s RunStatus) String() string {
	return string(s)
}

// DetectionRun is one full detection pass over a cohort of submissions.
type DetectionRun struct {
	ID         string `json:"id" db:"id"`
	LabName    string `json:"lab_name" db:"lab_name"`
	Status     string `json:"status" db:"status"`
	FilterMode string `json:"filter_mode" db:"filter_mode"`

	SubmissionCount  int `json:"submission_count" db:"submission_count"`
	PairCount        int `json:"pair_count" db:"pair_count"`
	CandidateCount   int `json:"candidate_count" db:"candidate_count"`
	PlagiarizedCount int `json:"plagiarized_count" db:"plagiarized_count"`
	InvalidCount     int `json:"invalid_count" db:"invalid_count"`

	Error string `json:"error,omitempty" db:"error"`

	ProcessingTimeMs *int       `json:"processing_time_ms,omitempty" db:"processing_time_ms"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// InvalidSubmission is one entry of the invalid-submission listing. Every
// invalid submission appears here regardless of pairwise comparison.
type InvalidSubmission struct {
	StudentID string `json:"student_id"`
	Reason    string `json:"reason"`
}

// DetectionResult is the full outcome of a run as handed to reporting.
type DetectionResult struct {
	RunID              string              `json:"run_id"`
	LabName            string              `json:"lab_name"`
	Status             string              `json:"status"`
	SubmissionCount    int                 `json:"submission_count"`
	PairCount          int                 `json:"pair_count"`
	Candidates         []*ComparisonRecord `json:"candidates"`
	InvalidSubmissions []InvalidSubmission `json:"invalid_submissions"`
	ProcessingTimeMs   int                 `json:"processing_time_ms"`
	CompletedAt        time.Time           `json:"completed_at"`
}
