package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/progress"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// SubsectionProgress is one subsection's completion row, with the access
// badge the learner would see in the outline.
type SubsectionProgress struct {
	UsageKey    structure.BlockID `json:"usage_key"`
	DisplayName string            `json:"display_name"`
	Attempted   float64           `json:"attempted"`
	Total       float64           `json:"total"`
	State       progress.Ternary  `json:"state"`
	Access      AccessResult      `json:"access"`
}

// ChapterProgress groups its subsections' rows.
type ChapterProgress struct {
	UsageKey    structure.BlockID    `json:"usage_key"`
	DisplayName string               `json:"display_name"`
	Attempted   float64              `json:"attempted"`
	Total       float64              `json:"total"`
	State       progress.Ternary     `json:"state"`
	Subsections []SubsectionProgress `json:"subsections"`
}

// CourseProgressSummary is the learner's course outline with per-block
// completion and access state.
type CourseProgressSummary struct {
	CourseID  structure.CourseID `json:"course_id"`
	Attempted float64            `json:"attempted"`
	Total     float64            `json:"total"`
	Percent   float64            `json:"percent"`
	State     progress.Ternary   `json:"state"`
	Chapters  []ChapterProgress  `json:"chapters"`
}

// ProgressSummaryService renders the per-learner course outline. It
// listens for score writes to keep its cache honest.
type ProgressSummaryService interface {
	ScoreListener
	Summary(ctx context.Context, userID uint, courseID structure.CourseID) (CourseProgressSummary, error)
}

type progressSummaryService struct {
	views    StructureProvider
	scores   ScoreReader
	access   AccessService
	roles    RoleProvider
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
}

// NewProgressSummaryService builds the summary renderer.
func NewProgressSummaryService(views StructureProvider, scores ScoreReader, access AccessService, roles RoleProvider, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) ProgressSummaryService {
	return &progressSummaryService{
		views:    views,
		scores:   scores,
		access:   access,
		roles:    roles,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "progress_summary_service").Logger(),
	}
}

func progressCacheKey(userID uint, courseID structure.CourseID) string {
	return fmt.Sprintf("progress:%d:%s", userID, courseID)
}

func (s *progressSummaryService) Summary(ctx context.Context, userID uint, courseID structure.CourseID) (CourseProgressSummary, error) {
	cacheKey := progressCacheKey(userID, courseID)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Result(); err == nil {
			var summary CourseProgressSummary
			if err := json.Unmarshal([]byte(cached), &summary); err == nil {
				return summary, nil
			}
		} else if err != redis.Nil {
			s.logger.Warn().Err(err).Str("course_id", courseID.String()).Msg("failed to read progress cache")
		}
	}

	summary, err := s.compute(ctx, userID, courseID)
	if err != nil {
		return CourseProgressSummary{}, err
	}

	if s.cache != nil {
		if payload, err := json.Marshal(summary); err == nil {
			if err := s.cache.Set(ctx, cacheKey, payload, s.cacheTTL).Err(); err != nil {
				s.logger.Warn().Err(err).Str("course_id", courseID.String()).Msg("failed to store progress cache")
			}
		}
	}

	return summary, nil
}

func (s *progressSummaryService) compute(ctx context.Context, userID uint, courseID structure.CourseID) (CourseProgressSummary, error) {
	staff, err := s.roles.IsStaff(ctx, userID, courseID)
	if err != nil {
		return CourseProgressSummary{}, err
	}

	view, err := s.views.GetCourseView(ctx, courseID, staff)
	if err != nil {
		return CourseProgressSummary{}, err
	}

	summary := CourseProgressSummary{CourseID: courseID}
	overall := &progress.Progress{}
	for _, chapterID := range view.Chapters() {
		chapterNode, err := view.Get(chapterID)
		if err != nil {
			return CourseProgressSummary{}, err
		}

		chapter := ChapterProgress{
			UsageKey:    chapterID,
			DisplayName: chapterNode.DisplayName,
		}
		chapterTotal := &progress.Progress{}
		for _, subsectionID := range view.DescendantsByCategory(chapterID, structure.CategorySequential) {
			row, err := s.subsectionProgress(ctx, userID, courseID, view, subsectionID)
			if err != nil {
				return CourseProgressSummary{}, err
			}
			chapter.Subsections = append(chapter.Subsections, row)

			p, err := progress.New(row.Attempted, row.Total)
			if err == nil {
				chapterTotal = progress.Add(chapterTotal, &p)
			}
		}

		chapter.Attempted, chapter.Total = chapterTotal.Frac()
		chapter.State = chapterTotal.Ternary()
		overall = progress.Add(overall, chapterTotal)
		summary.Chapters = append(summary.Chapters, chapter)
	}

	summary.Attempted, summary.Total = overall.Frac()
	summary.Percent = overall.Percent()
	summary.State = overall.Ternary()

	return summary, nil
}

func (s *progressSummaryService) subsectionProgress(ctx context.Context, userID uint, courseID structure.CourseID, view *structure.View, subsectionID structure.BlockID) (SubsectionProgress, error) {
	node, err := view.Get(subsectionID)
	if err != nil {
		return SubsectionProgress{}, err
	}

	row := SubsectionProgress{
		UsageKey:    subsectionID,
		DisplayName: node.DisplayName,
		State:       progress.TernaryNone,
	}

	for _, problemID := range view.Descendants(subsectionID) {
		problemNode, err := view.Get(problemID)
		if err != nil {
			return SubsectionProgress{}, err
		}
		if !problemNode.Scorable() {
			continue
		}
		row.Total++

		score, err := s.scores.Read(ctx, userID, problemNode, true)
		if err != nil {
			return SubsectionProgress{}, err
		}
		if score != nil && score.FirstAttemptedAt != nil {
			row.Attempted++
		}
	}

	p, err := progress.New(row.Attempted, row.Total)
	if err == nil {
		row.State = p.Ternary()
	}

	access, err := s.access.CanLoad(ctx, userID, courseID, subsectionID)
	if err != nil {
		return SubsectionProgress{}, err
	}
	row.Access = access

	return row, nil
}

// OnScoreWritten implements ScoreListener: a score write invalidates the
// learner's cached summary.
func (s *progressSummaryService) OnScoreWritten(ctx context.Context, event ScoreWrittenEvent) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, progressCacheKey(event.UserID, event.CourseID)).Err()
}
