package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/observability"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// StructureProvider builds the visibility-filtered block view for a
// course. Views are cached per (course, access partition) and shared
// read-only across users in the same partition.
type StructureProvider interface {
	GetCourseView(ctx context.Context, courseID structure.CourseID, staff bool) (*structure.View, error)
	Invalidate(ctx context.Context, courseID structure.CourseID)
}

type structureProvider struct {
	blocks   repository.BlockRepository
	cache    *redis.Client
	cacheTTL time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

// NewStructureProvider builds the provider.
func NewStructureProvider(blocks repository.BlockRepository, cache *redis.Client, ttl time.Duration, logger zerolog.Logger) StructureProvider {
	return &structureProvider{
		blocks:   blocks,
		cache:    cache,
		cacheTTL: ttl,
		logger:   logger.With().Str("component", "structure_provider").Logger(),
		now:      time.Now,
	}
}

type cachedNode struct {
	ID                 string     `json:"id"`
	Category           string     `json:"category"`
	DisplayName        string     `json:"display_name"`
	Children           []string   `json:"children,omitempty"`
	Graded             bool       `json:"graded"`
	Format             string     `json:"format,omitempty"`
	Weight             *float64   `json:"weight,omitempty"`
	MaxScore           float64    `json:"max_score,omitempty"`
	Due                *time.Time `json:"due,omitempty"`
	VisibleToStaffOnly bool       `json:"staff_only,omitempty"`
	StartAt            *time.Time `json:"start_at,omitempty"`
}

func (p *structureProvider) GetCourseView(ctx context.Context, courseID structure.CourseID, staff bool) (*structure.View, error) {
	cacheKey := structureCacheKey(courseID, staff)

	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, cacheKey).Result(); err == nil {
			if view, buildErr := viewFromCache(courseID, []byte(cached)); buildErr == nil {
				observability.StructureCache().WithLabelValues("hit").Inc()
				return view, nil
			}
		} else if err != redis.Nil {
			p.logger.Warn().Err(err).Str("course_id", courseID.String()).Msg("failed to read structure cache")
		}
		observability.StructureCache().WithLabelValues("miss").Inc()
	}

	rows, err := p.blocks.ListByCourse(ctx, courseID.String())
	if err != nil {
		return nil, fmt.Errorf("load course blocks: %w", err)
	}

	nodes := p.filterNodes(rows, staff)
	view, err := structure.NewView(courseID, nodes)
	if err != nil {
		return nil, err
	}

	if p.cache != nil {
		if payload, err := cachePayload(nodes); err == nil {
			if err := p.cache.Set(ctx, cacheKey, payload, p.cacheTTL).Err(); err != nil {
				p.logger.Warn().Err(err).Str("course_id", courseID.String()).Msg("failed to store structure cache")
			}
		}
	}

	return view, nil
}

func (p *structureProvider) Invalidate(ctx context.Context, courseID structure.CourseID) {
	if p.cache == nil {
		return
	}
	keys := []string{
		structureCacheKey(courseID, true),
		structureCacheKey(courseID, false),
	}
	if err := p.cache.Del(ctx, keys...).Err(); err != nil {
		p.logger.Warn().Err(err).Str("course_id", courseID.String()).Msg("failed to invalidate structure cache")
	}
}

func (p *structureProvider) filterNodes(rows []models.CourseBlock, staff bool) []structure.BlockNode {
	now := p.now().UTC()
	nodes := make([]structure.BlockNode, 0, len(rows))
	for _, row := range rows {
		if !staff {
			if row.VisibleToStaffOnly {
				continue
			}
			if row.StartAt != nil && row.StartAt.After(now) {
				continue
			}
		}

		childKeys := row.ChildKeys()
		children := make([]structure.BlockID, 0, len(childKeys))
		for _, key := range childKeys {
			children = append(children, structure.BlockID(key))
		}

		nodes = append(nodes, structure.BlockNode{
			ID:                 structure.BlockID(row.UsageKey),
			Category:           row.Category,
			DisplayName:        row.DisplayName,
			Children:           children,
			Graded:             row.Graded,
			Format:             row.Format,
			Weight:             row.Weight,
			MaxScore:           row.MaxScore,
			Due:                row.DueAt,
			VisibleToStaffOnly: row.VisibleToStaffOnly,
			StartAt:            row.StartAt,
		})
	}
	return nodes
}

func structureCacheKey(courseID structure.CourseID, staff bool) string {
	partition := "learner"
	if staff {
		partition = "staff"
	}
	return fmt.Sprintf("structure:%s:%s", courseID, partition)
}

func cachePayload(nodes []structure.BlockNode) ([]byte, error) {
	cached := make([]cachedNode, 0, len(nodes))
	for _, node := range nodes {
		children := make([]string, 0, len(node.Children))
		for _, child := range node.Children {
			children = append(children, child.String())
		}
		cached = append(cached, cachedNode{
			ID:                 node.ID.String(),
			Category:           node.Category,
			DisplayName:        node.DisplayName,
			Children:           children,
			Graded:             node.Graded,
			Format:             node.Format,
			Weight:             node.Weight,
			MaxScore:           node.MaxScore,
			Due:                node.Due,
			VisibleToStaffOnly: node.VisibleToStaffOnly,
			StartAt:            node.StartAt,
		})
	}
	return json.Marshal(cached)
}

func viewFromCache(courseID structure.CourseID, payload []byte) (*structure.View, error) {
	var cached []cachedNode
	if err := json.Unmarshal(payload, &cached); err != nil {
		return nil, err
	}

	nodes := make([]structure.BlockNode, 0, len(cached))
	for _, node := range cached {
		children := make([]structure.BlockID, 0, len(node.Children))
		for _, child := range node.Children {
			children = append(children, structure.BlockID(child))
		}
		nodes = append(nodes, structure.BlockNode{
			ID:                 structure.BlockID(node.ID),
			Category:           node.Category,
			DisplayName:        node.DisplayName,
			Children:           children,
			Graded:             node.Graded,
			Format:             node.Format,
			Weight:             node.Weight,
			MaxScore:           node.MaxScore,
			Due:                node.Due,
			VisibleToStaffOnly: node.VisibleToStaffOnly,
			StartAt:            node.StartAt,
		})
	}
	return structure.NewView(courseID, nodes)
}
