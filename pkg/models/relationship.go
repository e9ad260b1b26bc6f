package models

import (
	"time"

	"github.com/google/uuid"
)

// RelationshipStatus marks a detected or user-specified link.
type RelationshipStatus string

const (
	RelationshipValid   RelationshipStatus = "valid"
	RelationshipInvalid RelationshipStatus = "invalid"
	RelationshipManual  RelationshipStatus = "manual"
)

// RelationshipKind is the cardinality of a relationship. One-to-many is the
// only detected kind in scope.
type RelationshipKind string

const RelationshipOneToMany RelationshipKind = "1:many"

// ValidMatchRateThreshold is the minimum referential match rate for a
// relationship to be considered valid.
const ValidMatchRateThreshold = 0.7

// Relationship is one link between two cleaned tables of the same project.
// The source side is the foreign key, the target side the referenced column.
type Relationship struct {
	ID           uuid.UUID          `json:"id"`
	ProjectID    uuid.UUID          `json:"project_id"`
	SourceTable  string             `json:"source_table"`
	SourceColumn string             `json:"source_column"`
	TargetTable  string             `json:"target_table"`
	TargetColumn string             `json:"target_column"`
	MatchRate    float64            `json:"match_rate"`
	Status       RelationshipStatus `json:"status"`
	Kind         RelationshipKind   `json:"kind"`
	CreatedAt    time.Time          `json:"created_at"`
}

// IsUsable reports whether the relationship participates in view generation.
func (r *Relationship) IsUsable() bool {
	return r.Status == RelationshipValid || r.Status == RelationshipManual
}
