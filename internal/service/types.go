package service

import (
	"time"

	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// ScorePair is an (earned, possible) pair.
type ScorePair struct {
	Earned   float64 `json:"earned"`
	Possible float64 `json:"possible"`
}

// Percent returns 100 * earned / possible, or 0 when nothing is possible.
func (s ScorePair) Percent() float64 {
	if s.Possible <= 0 {
		return 0
	}
	return 100 * s.Earned / s.Possible
}

// Fraction returns earned / possible in [0, 1], or 0 when nothing is possible.
func (s ScorePair) Fraction() float64 {
	if s.Possible <= 0 {
		return 0
	}
	return s.Earned / s.Possible
}

// ProblemScore is the resolved score of one scorable leaf block. Weighted
// values fold the authored problem weight in; raw values are as reported
// by the learner's submissions.
type ProblemScore struct {
	UsageKey         structure.BlockID `json:"usage_key"`
	RawEarned        float64           `json:"raw_earned"`
	RawPossible      float64           `json:"raw_possible"`
	WeightedEarned   float64           `json:"weighted_earned"`
	WeightedPossible float64           `json:"weighted_possible"`
	Weight           *float64          `json:"weight,omitempty"`
	Graded           bool              `json:"graded"`
	FirstAttemptedAt *time.Time        `json:"first_attempted_at,omitempty"`
}

// Weighted returns the weighted (earned, possible) pair.
func (p ProblemScore) Weighted() ScorePair {
	return ScorePair{Earned: p.WeightedEarned, Possible: p.WeightedPossible}
}

// SubsectionGradeValue is the computed per-(user, subsection) aggregate.
type SubsectionGradeValue struct {
	UsageKey         structure.BlockID              `json:"usage_key"`
	DisplayName      string                         `json:"display_name"`
	Format           string                         `json:"format"`
	Graded           bool                           `json:"graded"`
	AllTotal         ScorePair                      `json:"all_total"`
	GradedTotal      ScorePair                      `json:"graded_total"`
	ProblemScores    map[structure.BlockID]ProblemScore `json:"problem_scores,omitempty"`
	FirstAttemptedAt *time.Time                     `json:"first_attempted_at,omitempty"`
	Due              *time.Time                     `json:"due,omitempty"`
	// AssumedZero marks a zero grade synthesized by course policy. Only
	// the read path sets it; persistence still requires a real attempt.
	AssumedZero bool `json:"-"`
}

// Attempted reports whether the learner has engaged with any descendant,
// or the course assumes engagement for absent grades.
func (g SubsectionGradeValue) Attempted() bool {
	return g.FirstAttemptedAt != nil || g.AssumedZero
}

// ChapterGradeValue groups a chapter's subsection grades in authoring order.
type ChapterGradeValue struct {
	UsageKey    structure.BlockID      `json:"usage_key"`
	DisplayName string                 `json:"display_name"`
	Subsections []SubsectionGradeValue `json:"subsections"`
}

// CategoryBreakdown is one grader's contribution to the course percent.
type CategoryBreakdown struct {
	Category string  `json:"category"`
	Percent  float64 `json:"percent"`
	Detail   string  `json:"detail"`
}

// SectionRow is one row of the per-subsection summary report. Category
// average rows are flagged prominent.
type SectionRow struct {
	Category  string  `json:"category"`
	Label     string  `json:"label"`
	Percent   float64 `json:"percent"`
	Detail    string  `json:"detail"`
	Prominent bool    `json:"prominent"`
}

// GradeSummary is the rendered summary report of a course grade.
type GradeSummary struct {
	Percent          float64             `json:"percent"`
	Grade            string              `json:"grade,omitempty"`
	GradeBreakdown   []CategoryBreakdown `json:"grade_breakdown"`
	SectionBreakdown []SectionRow        `json:"section_breakdown"`
}

// CourseGradeValue is the computed per-(user, course) aggregate.
type CourseGradeValue struct {
	CourseID      structure.CourseID     `json:"course_id"`
	Percent       float64                `json:"percent"`
	LetterGrade   string                 `json:"letter_grade,omitempty"`
	Passed        bool                   `json:"passed"`
	ChapterGrades []ChapterGradeValue    `json:"chapter_grades"`
	Summary       GradeSummary           `json:"summary"`
}

// AccessDecision is the outcome of an access check for one (user, block).
type AccessDecision string

const (
	// AccessVisible means the block is reachable by the learner.
	AccessVisible AccessDecision = "visible"
	// AccessGated means an unfulfilled prerequisite blocks the learner.
	AccessGated AccessDecision = "gated"
	// AccessHidden means visibility rules exclude the block entirely.
	AccessHidden AccessDecision = "hidden"
)

// AccessResult pairs the decision with a human-readable requirement
// description for gated content.
type AccessResult struct {
	Decision    AccessDecision `json:"decision"`
	Requirement string         `json:"requirement,omitempty"`
}
