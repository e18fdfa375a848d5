package models

import "time"

// DetectionRequestedEvent asks the worker to execute a run. The submission
// payload travels in-band; the service never fetches files itself.
type DetectionRequestedEvent struct {
	RunID     string                `json:"run_id"`
	Request   StartDetectionRequest `json:"request"`
	Timestamp int64                 `json:"timestamp"`
}

type DetectionCompletedEvent struct {
	RunID            string    `json:"run_id"`
	Status           string    `json:"status"`
	CandidateCount   int       `json:"candidate_count"`
	PlagiarizedCount int       `json:"plagiarized_count"`
	InvalidCount     int       `json:"invalid_count"`
	ProcessingTimeMs int       `json:"processing_time_ms"`
	CompletedAt      time.Time `json:"completed_at"`
}

type DetectionFailedEvent struct {
	RunID    string    `json:"run_id"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
