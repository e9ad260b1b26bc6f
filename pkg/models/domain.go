package models

import (
	"time"

	"github.com/google/uuid"
)

// DomainDecision is the UX mode chosen by the classifier's confidence band.
type DomainDecision string

const (
	DecisionAutoDetect   DomainDecision = "auto_detect"
	DecisionShowTop3     DomainDecision = "show_top_3"
	DecisionManualSelect DomainDecision = "manual_select"
	DecisionConfirmed    DomainDecision = "confirmed"
)

// DomainJobStatus is the lifecycle state of a domain detection job.
type DomainJobStatus string

const (
	DomainJobPending   DomainJobStatus = "pending"
	DomainJobCompleted DomainJobStatus = "completed"
	DomainJobConfirmed DomainJobStatus = "confirmed"
)

// DomainScore is one domain's score entry, kept for the full score map.
type DomainScore struct {
	Domain     string `json:"domain"`
	Score      int    `json:"score"`
	MaxScore   int    `json:"max_score"`
	Confidence int    `json:"confidence"`
}

// DomainDetectionJob is the project-level classification outcome.
type DomainDetectionJob struct {
	ID             uuid.UUID       `json:"id"`
	ProjectID      uuid.UUID       `json:"project_id"`
	CleaningJobIDs []uuid.UUID     `json:"cleaning_job_ids"`
	Domain         string          `json:"domain"`
	Confidence     int             `json:"confidence"`
	Decision       DomainDecision  `json:"decision"`
	PrimaryMatches []string        `json:"primary_matches"`
	KeywordMatches []string        `json:"keyword_matches"`
	Top3           []DomainScore   `json:"top3_alternatives,omitempty"`
	AllScores      []DomainScore   `json:"all_scores"`
	Status         DomainJobStatus `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
