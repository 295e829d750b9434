package dto

import (
	"time"

	"github.com/mirelo-edu/coursegate-api/internal/service"
)

// SubsectionGradeResponse is the serialized subsection aggregate.
type SubsectionGradeResponse struct {
	UsageKey         string     `json:"usage_key"`
	DisplayName      string     `json:"display_name"`
	Format           string     `json:"format,omitempty"`
	Graded           bool       `json:"graded"`
	EarnedAll        float64    `json:"earned_all"`
	PossibleAll      float64    `json:"possible_all"`
	EarnedGraded     float64    `json:"earned_graded"`
	PossibleGraded   float64    `json:"possible_graded"`
	Percent          float64    `json:"percent"`
	FirstAttemptedAt *time.Time `json:"first_attempted_at,omitempty"`
	Due              *time.Time `json:"due,omitempty"`
}

// NewSubsectionGradeResponse converts a computed grade into a DTO.
func NewSubsectionGradeResponse(grade service.SubsectionGradeValue) SubsectionGradeResponse {
	return SubsectionGradeResponse{
		UsageKey:         grade.UsageKey.String(),
		DisplayName:      grade.DisplayName,
		Format:           grade.Format,
		Graded:           grade.Graded,
		EarnedAll:        grade.AllTotal.Earned,
		PossibleAll:      grade.AllTotal.Possible,
		EarnedGraded:     grade.GradedTotal.Earned,
		PossibleGraded:   grade.GradedTotal.Possible,
		Percent:          grade.GradedTotal.Percent(),
		FirstAttemptedAt: grade.FirstAttemptedAt,
		Due:              grade.Due,
	}
}

// ChapterGradeResponse groups subsection grades under their chapter.
type ChapterGradeResponse struct {
	UsageKey    string                    `json:"usage_key"`
	DisplayName string                    `json:"display_name"`
	Subsections []SubsectionGradeResponse `json:"subsections"`
}

// CourseGradeResponse is the serialized course aggregate with summary.
type CourseGradeResponse struct {
	CourseID      string                 `json:"course_id"`
	Percent       float64                `json:"percent"`
	LetterGrade   string                 `json:"letter_grade,omitempty"`
	Passed        bool                   `json:"passed"`
	ChapterGrades []ChapterGradeResponse `json:"chapter_grades"`
	Summary       service.GradeSummary   `json:"summary"`
}

// NewCourseGradeResponse converts a computed course grade into a DTO.
func NewCourseGradeResponse(grade service.CourseGradeValue) CourseGradeResponse {
	chapters := make([]ChapterGradeResponse, 0, len(grade.ChapterGrades))
	for _, chapter := range grade.ChapterGrades {
		subsections := make([]SubsectionGradeResponse, 0, len(chapter.Subsections))
		for _, subsection := range chapter.Subsections {
			subsections = append(subsections, NewSubsectionGradeResponse(subsection))
		}
		chapters = append(chapters, ChapterGradeResponse{
			UsageKey:    chapter.UsageKey.String(),
			DisplayName: chapter.DisplayName,
			Subsections: subsections,
		})
	}

	return CourseGradeResponse{
		CourseID:      grade.CourseID.String(),
		Percent:       grade.Percent,
		LetterGrade:   grade.LetterGrade,
		Passed:        grade.Passed,
		ChapterGrades: chapters,
		Summary:       grade.Summary,
	}
}

// GradeOverrideRequest replaces the stored totals of a subsection grade.
type GradeOverrideRequest struct {
	UserID         uint     `json:"user_id" validate:"required"`
	UsageKey       string   `json:"usage_key" validate:"required"`
	EarnedAll      *float64 `json:"earned_all" validate:"omitempty,min=0"`
	PossibleAll    *float64 `json:"possible_all" validate:"omitempty,min=0"`
	EarnedGraded   *float64 `json:"earned_graded" validate:"omitempty,min=0"`
	PossibleGraded *float64 `json:"possible_graded" validate:"omitempty,min=0"`
	Reason         string   `json:"reason" validate:"required,min=3"`
}
