// Package types provides type definitions for structured data used throughout the lead-harvester system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "time"

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

const (
	StatusPending     JobStatus = "pending"
	StatusRunning     JobStatus = "running"
	StatusCompleted   JobStatus = "completed"
	StatusFailed      JobStatus = "failed"
	StatusCancelled   JobStatus = "cancelled"
	StatusBlocked     JobStatus = "blocked"
	StatusRateLimited JobStatus = "rate_limited"
)

// AllJobStatuses lists every job status, used for stats aggregation.
var AllJobStatuses = []JobStatus{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
	StatusBlocked,
	StatusRateLimited,
}

// Terminal reports whether a job in this status will never change again.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusBlocked, StatusRateLimited:
		return true
	}
	return false
}

// SourceHint selects a scraper variant at job creation time.
type SourceHint string

const (
	HintAuto    SourceHint = "auto"
	HintSearch  SourceHint = "search"
	HintNetwork SourceHint = "network"
	HintWebsite SourceHint = "website"
)

// Job represents one crawl request and its lifecycle.
// It is created by the scheduler and mutated only by the scheduler's
// execution loop; callers only ever see copies via Snapshot.
type Job struct {
	ID           string         `json:"id"`
	Query        string         `json:"query"`
	SourceHint   SourceHint     `json:"source_hint"`
	Config       ScrapeConfig   `json:"config"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Status       JobStatus      `json:"status"`
	CreatedAt    time.Time      `json:"created_at"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	Progress     float64        `json:"progress"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Result       *Result        `json:"result,omitempty"`
}

// Snapshot returns a copy of the job that is safe to hand across the API
// boundary while the scheduler keeps mutating the original.
func (j *Job) Snapshot() Job {
	out := *j
	if j.StartedAt != nil {
		t := *j.StartedAt
		out.StartedAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		out.CompletedAt = &t
	}
	if j.Metadata != nil {
		out.Metadata = make(map[string]any, len(j.Metadata))
		for k, v := range j.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}
