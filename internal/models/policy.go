package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// CoursePolicy stores a course's grading policy as the authored JSON
// document. The document is schema-validated before a row is written.
type CoursePolicy struct {
	ID        uint           `gorm:"primaryKey"`
	CourseID  string         `gorm:"size:255;not null;uniqueIndex"`
	Document  datatypes.JSON `gorm:"type:json;not null"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// GradingPolicy is the decoded grading policy: an ordered list of graders
// plus the letter-grade cutoffs. Grader weights are reported as authored
// and are not normalised.
type GradingPolicy struct {
	Graders []GraderSpec       `json:"graders"`
	Cutoffs map[string]float64 `json:"cutoffs"`
}

// GraderSpec describes one grader. When Name is set the spec selects the
// single subsection with that display name; otherwise it aggregates every
// graded subsection whose assignment format matches Type, padding up to
// MinCount with zero scores and discarding the DropCount lowest.
type GraderSpec struct {
	Type       string  `json:"type"`
	Name       string  `json:"name,omitempty"`
	MinCount   int     `json:"min_count,omitempty"`
	DropCount  int     `json:"drop_count,omitempty"`
	Weight     float64 `json:"weight"`
	ShortLabel string  `json:"short_label,omitempty"`
}

// SingleSection reports whether the spec selects one named subsection.
func (g GraderSpec) SingleSection() bool {
	return g.Name != ""
}

// DecodePolicy parses the stored policy document.
func (p CoursePolicy) DecodePolicy() (GradingPolicy, error) {
	var policy GradingPolicy
	if err := json.Unmarshal(p.Document, &policy); err != nil {
		return GradingPolicy{}, err
	}
	return policy, nil
}
