package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/observability"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// CourseGradeService rolls subsection grades up into a course grade and
// persists the result.
type CourseGradeService interface {
	// Compute derives the course grade from subsection grades without
	// writing anything.
	Compute(ctx context.Context, userID uint, view *structure.View, cfg models.CourseConfig) (CourseGradeValue, error)
	// Update recomputes and persists the course grade.
	Update(ctx context.Context, userID uint, view *structure.View, cfg models.CourseConfig) (CourseGradeValue, error)
	// Read returns the persisted course grade when available, falling
	// back to a fresh computation.
	Read(ctx context.Context, userID uint, view *structure.View, cfg models.CourseConfig) (CourseGradeValue, error)
}

type courseGradeService struct {
	subsections SubsectionGradeService
	policies    GradingPolicyService
	grades      repository.GradeRepository
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// NewCourseGradeService builds the course-level aggregator.
func NewCourseGradeService(subsections SubsectionGradeService, policies GradingPolicyService, grades repository.GradeRepository, logger zerolog.Logger) CourseGradeService {
	return &courseGradeService{
		subsections: subsections,
		policies:    policies,
		grades:      grades,
		logger:      logger.With().Str("component", "course_grade_service").Logger(),
		tracer:      otel.Tracer("github.com/mirelo-edu/coursegate-api/internal/service/course_grades"),
		now:         time.Now,
	}
}

func (s *courseGradeService) Compute(ctx context.Context, userID uint, view *structure.View, cfg models.CourseConfig) (CourseGradeValue, error) {
	started := s.now()
	defer func() {
		observability.RollupLatency().WithLabelValues("course").Observe(time.Since(started).Seconds())
	}()

	policy, err := s.policies.Get(ctx, view.Course().String())
	if err != nil {
		return CourseGradeValue{}, err
	}

	chapters, err := s.collectChapterGrades(ctx, userID, view, cfg)
	if err != nil {
		return CourseGradeValue{}, err
	}

	value := CourseGradeValue{
		CourseID:      view.Course(),
		ChapterGrades: chapters,
	}

	graded := gradedSubsections(chapters)
	value.Summary = gradeFromPolicy(policy, graded)
	value.Percent = roundPercent(value.Summary.Percent)
	value.Summary.Percent = value.Percent
	value.LetterGrade = letterGrade(policy.Cutoffs, value.Percent)
	value.Passed = passed(policy.Cutoffs, value.Percent)
	value.Summary.Grade = value.LetterGrade

	return value, nil
}

func (s *courseGradeService) Update(ctx context.Context, userID uint, view *structure.View, cfg models.CourseConfig) (CourseGradeValue, error) {
	ctx, span := s.tracer.Start(ctx, "grades.course.update", trace.WithAttributes(
		attribute.Int64("grades.user_id", int64(userID)),
		attribute.String("grades.course_id", view.Course().String()),
	))
	defer span.End()

	value, err := s.Compute(ctx, userID, view, cfg)
	if err != nil {
		span.RecordError(err)
		return CourseGradeValue{}, err
	}

	if !cfg.PersistentGradesEnabled {
		return value, nil
	}

	breakdown, err := json.Marshal(value.Summary.GradeBreakdown)
	if err != nil {
		span.RecordError(err)
		return CourseGradeValue{}, err
	}

	row := models.CourseGrade{
		UserID:      userID,
		CourseID:    view.Course().String(),
		Percent:     value.Percent,
		LetterGrade: value.LetterGrade,
		Passed:      value.Passed,
		Breakdown:   datatypes.JSON(breakdown),
	}
	if value.Passed {
		now := s.now().UTC()
		row.PassedAt = &now
	}
	if err := s.grades.UpsertCourseGrade(ctx, &row); err != nil {
		span.RecordError(err)
		return CourseGradeValue{}, err
	}
	observability.GradeWrites().WithLabelValues("course").Inc()

	return value, nil
}

func (s *courseGradeService) Read(ctx context.Context, userID uint, view *structure.View, cfg models.CourseConfig) (CourseGradeValue, error) {
	return s.Compute(ctx, userID, view, cfg)
}

func (s *courseGradeService) collectChapterGrades(ctx context.Context, userID uint, view *structure.View, cfg models.CourseConfig) ([]ChapterGradeValue, error) {
	var chapters []ChapterGradeValue
	for _, chapterID := range view.Chapters() {
		chapterNode, err := view.Get(chapterID)
		if err != nil {
			return nil, err
		}

		chapter := ChapterGradeValue{
			UsageKey:    chapterID,
			DisplayName: chapterNode.DisplayName,
		}
		for _, subsectionID := range view.DescendantsByCategory(chapterID, structure.CategorySequential) {
			grade, err := s.subsections.Read(ctx, userID, view, subsectionID, cfg)
			if err != nil {
				return nil, err
			}
			chapter.Subsections = append(chapter.Subsections, grade)
		}
		chapters = append(chapters, chapter)
	}

	return chapters, nil
}

// gradedSubsections flattens the chapter structure into the graded
// subsections in authoring order, deduplicated on usage key. Subsections
// with no scorable content contribute nothing to any category.
func gradedSubsections(chapters []ChapterGradeValue) []SubsectionGradeValue {
	seen := make(map[structure.BlockID]struct{})
	var out []SubsectionGradeValue
	for _, chapter := range chapters {
		for _, sub := range chapter.Subsections {
			if !sub.Graded || sub.GradedTotal.Possible <= 0 {
				continue
			}
			if _, ok := seen[sub.UsageKey]; ok {
				continue
			}
			seen[sub.UsageKey] = struct{}{}
			out = append(out, sub)
		}
	}

	return out
}

// gradeFromPolicy runs every grader in the policy and combines their
// weighted contributions into the summary report.
func gradeFromPolicy(policy models.GradingPolicy, graded []SubsectionGradeValue) GradeSummary {
	byFormat := make(map[string][]SubsectionGradeValue)
	for _, sub := range graded {
		byFormat[sub.Format] = append(byFormat[sub.Format], sub)
	}

	summary := GradeSummary{
		GradeBreakdown:   []CategoryBreakdown{},
		SectionBreakdown: []SectionRow{},
	}
	var percent float64
	for _, grader := range policy.Graders {
		var part GradeSummary
		if grader.SingleSection() {
			part = gradeSingleSection(grader, byFormat[grader.Type])
		} else {
			part = gradeAssignmentFormat(grader, byFormat[grader.Type])
		}
		percent += part.Percent
		summary.GradeBreakdown = append(summary.GradeBreakdown, part.GradeBreakdown...)
		summary.SectionBreakdown = append(summary.SectionBreakdown, part.SectionBreakdown...)
	}
	summary.Percent = percent

	return summary
}

// gradeAssignmentFormat averages a category's subsections after padding to
// min_count with zeros and dropping the drop_count lowest.
func gradeAssignmentFormat(grader models.GraderSpec, subs []SubsectionGradeValue) GradeSummary {
	category := graderCategory(grader)
	short := graderShortLabel(grader)

	type entry struct {
		fraction float64
		row      SectionRow
	}
	count := len(subs)
	if grader.MinCount > count {
		count = grader.MinCount
	}
	entries := make([]entry, 0, count)
	for i, sub := range subs {
		fraction := sub.GradedTotal.Fraction()
		label := fmt.Sprintf("%s %02d", short, i+1)
		detail := fmt.Sprintf("%s - %.4g%% (%.4g/%.4g)",
			sub.DisplayName, 100*fraction, sub.GradedTotal.Earned, sub.GradedTotal.Possible)
		if !sub.Attempted() {
			detail = fmt.Sprintf("%s - Unattempted", sub.DisplayName)
		}
		entries = append(entries, entry{fraction: fraction, row: SectionRow{
			Category: category,
			Label:    label,
			Percent:  fraction,
			Detail:   detail,
		}})
	}
	for i := len(subs); i < grader.MinCount; i++ {
		label := fmt.Sprintf("%s %02d", short, i+1)
		entries = append(entries, entry{row: SectionRow{
			Category: category,
			Label:    label,
			Detail:   fmt.Sprintf("Unreleased %s - 0%% (?/?)", category),
		}})
	}

	dropped := lowestIndices(entries, grader.DropCount, func(e entry) float64 { return e.fraction })

	var sum float64
	kept := 0
	rows := make([]SectionRow, 0, len(entries)+1)
	for i, e := range entries {
		row := e.row
		if _, drop := dropped[i]; drop {
			row.Detail += " (dropped)"
		} else {
			sum += e.fraction
			kept++
		}
		rows = append(rows, row)
	}

	var average float64
	if kept > 0 {
		average = sum / float64(kept)
	}
	weighted := average * grader.Weight

	detail := fmt.Sprintf("%s Average = %.4g%%", category, 100*average)
	rows = append(rows, SectionRow{
		Category:  category,
		Label:     fmt.Sprintf("%s Avg", short),
		Percent:   average,
		Detail:    detail,
		Prominent: true,
	})

	return GradeSummary{
		Percent: weighted,
		GradeBreakdown: []CategoryBreakdown{{
			Category: category,
			Percent:  weighted,
			Detail:   fmt.Sprintf("%s = %.4g%% of a possible %.4g%%", category, 100*weighted, 100*grader.Weight),
		}},
		SectionBreakdown: rows,
	}
}

// gradeSingleSection grades on the first subsection whose display name
// matches the grader's configured name, in authoring order.
func gradeSingleSection(grader models.GraderSpec, subs []SubsectionGradeValue) GradeSummary {
	category := graderCategory(grader)

	var found *SubsectionGradeValue
	for i := range subs {
		if subs[i].DisplayName == grader.Name {
			found = &subs[i]
			break
		}
	}

	var fraction float64
	detail := fmt.Sprintf("%s - 0%% (?/?)", grader.Name)
	if found != nil {
		fraction = found.GradedTotal.Fraction()
		detail = fmt.Sprintf("%s - %.4g%% (%.4g/%.4g)",
			grader.Name, 100*fraction, found.GradedTotal.Earned, found.GradedTotal.Possible)
	}
	weighted := fraction * grader.Weight

	return GradeSummary{
		Percent: weighted,
		GradeBreakdown: []CategoryBreakdown{{
			Category: category,
			Percent:  weighted,
			Detail:   fmt.Sprintf("%s = %.4g%% of a possible %.4g%%", category, 100*weighted, 100*grader.Weight),
		}},
		SectionBreakdown: []SectionRow{{
			Category:  category,
			Label:     category,
			Percent:   fraction,
			Detail:    detail,
			Prominent: true,
		}},
	}
}

// lowestIndices picks the indices of the n lowest values. Ties break
// toward later indices so earlier attempts are kept.
func lowestIndices[T any](entries []T, n int, value func(T) float64) map[int]struct{} {
	dropped := make(map[int]struct{})
	if n <= 0 {
		return dropped
	}
	if n > len(entries) {
		n = len(entries)
	}

	order := make([]int, len(entries))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		va, vb := value(entries[order[a]]), value(entries[order[b]])
		if va != vb {
			return va < vb
		}
		return order[a] > order[b]
	})
	for _, idx := range order[:n] {
		dropped[idx] = struct{}{}
	}

	return dropped
}

// roundPercent rounds a [0, 1] fraction to four decimals with a half-cent
// nudge, so a learner at 49.95 percent grades as 0.5. The result is
// clamped back into [0, 1]: a perfect score must not nudge past 1.
func roundPercent(fraction float64) float64 {
	rounded := math.Floor((fraction*100+0.05)*100) / 10000
	if rounded > 1 {
		return 1
	}
	if rounded < 0 {
		return 0
	}
	return rounded
}

// letterGrade maps a rounded percent onto the policy cutoffs, highest
// threshold first.
func letterGrade(cutoffs map[string]float64, percent float64) string {
	type cutoff struct {
		letter    string
		threshold float64
	}
	ordered := make([]cutoff, 0, len(cutoffs))
	for letter, threshold := range cutoffs {
		ordered = append(ordered, cutoff{letter: letter, threshold: threshold})
	}
	sort.Slice(ordered, func(a, b int) bool {
		if ordered[a].threshold != ordered[b].threshold {
			return ordered[a].threshold > ordered[b].threshold
		}
		// Letters sharing a threshold pick deterministically.
		return ordered[a].letter < ordered[b].letter
	})

	for _, c := range ordered {
		if percent >= c.threshold {
			return c.letter
		}
	}

	return ""
}

// passed reports whether the percent clears the lowest positive cutoff.
func passed(cutoffs map[string]float64, percent float64) bool {
	lowest := math.Inf(1)
	for _, threshold := range cutoffs {
		if threshold > 0 && threshold < lowest {
			lowest = threshold
		}
	}
	if math.IsInf(lowest, 1) {
		return false
	}

	return percent >= lowest
}

func graderCategory(grader models.GraderSpec) string {
	if grader.SingleSection() {
		return grader.Name
	}
	return grader.Type
}

func graderShortLabel(grader models.GraderSpec) string {
	if grader.ShortLabel != "" {
		return grader.ShortLabel
	}
	return grader.Type
}
