package service

import (
	"context"
	"time"

	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// SubmissionsScore is a score reported by an external submissions service
// for problem types that own their scoring.
type SubmissionsScore struct {
	Earned           float64
	Possible         float64
	FirstAttemptedAt *time.Time
}

// SubmissionsScoreProvider resolves scores for problems whose type reports
// earned/possible through the submissions service. A (nil, nil) return
// means the provider has no score for the block and the course-scoped
// store should be consulted instead.
type SubmissionsScoreProvider interface {
	GetSubmissionsScore(ctx context.Context, userID uint, usageKey structure.BlockID) (*SubmissionsScore, error)
}

// CompletionProvider reports how much of a subsection the learner has
// completed, as a percentage in [0, 100].
type CompletionProvider interface {
	SubsectionCompletionPercentage(ctx context.Context, userID uint, usageKey structure.BlockID) (float64, error)
}

// RoleProvider answers role questions for access decisions. Staff users
// bypass gating entirely.
type RoleProvider interface {
	IsStaff(ctx context.Context, userID uint, courseID structure.CourseID) (bool, error)
}
