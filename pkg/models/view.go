package models

import (
	"time"

	"github.com/google/uuid"
)

// UnifiedView is a SQL view definition over a project's cleaned tables.
// Views are replaced, never mutated: regeneration inserts a new row and
// deactivates the old one.
type UnifiedView struct {
	ID        uuid.UUID `json:"id"`
	ProjectID uuid.UUID `json:"project_id"`
	ViewName  string    `json:"view_name"`
	ViewSQL   string    `json:"view_sql"`
	FactTable string    `json:"fact_table"`
	// Tables lists every cleaned table the view references; the view is
	// marked inactive when any of them is dropped.
	Tables    []string  `json:"tables"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
