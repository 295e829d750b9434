package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// ErrGatingValidation indicates a gating configuration change that the
// engine refuses.
var ErrGatingValidation = errors.New("invalid gating configuration")

// Prerequisite is a subsection registered as gate material.
type Prerequisite struct {
	UsageKey    structure.BlockID `json:"usage_key"`
	DisplayName string            `json:"display_name"`
	Namespace   string            `json:"namespace"`
}

// RequiredContent describes what currently gates one subsection.
type RequiredContent struct {
	PrerequisiteKey structure.BlockID `json:"prerequisite_key"`
	MinScore        *int              `json:"min_score,omitempty"`
	MinCompletion   *int              `json:"min_completion,omitempty"`
}

// GatingPolicyService manages which subsections act as prerequisites and
// which subsections they gate.
type GatingPolicyService interface {
	// AddPrerequisite registers a subsection as gate material. Repeated
	// calls are no-ops.
	AddPrerequisite(ctx context.Context, courseID structure.CourseID, prereqKey structure.BlockID) error
	// RemovePrerequisite deletes the subsection's milestone and every
	// gate that depended on it.
	RemovePrerequisite(ctx context.Context, courseID structure.CourseID, prereqKey structure.BlockID) error
	// SetRequiredContent gates a subsection on a prerequisite. An empty
	// prerequisite key clears the gate.
	SetRequiredContent(ctx context.Context, courseID structure.CourseID, gatedKey, prereqKey structure.BlockID, minScore, minCompletion *int) error
	// GetRequiredContent returns the gate on a subsection, or nil when
	// the subsection is not gated.
	GetRequiredContent(ctx context.Context, courseID structure.CourseID, gatedKey structure.BlockID) (*RequiredContent, error)
	// IsPrerequisite reports whether the subsection is gate material.
	IsPrerequisite(ctx context.Context, courseID structure.CourseID, key structure.BlockID) (bool, error)
	// ListPrerequisites returns the course's registered prerequisites in
	// registration order.
	ListPrerequisites(ctx context.Context, courseID structure.CourseID) ([]Prerequisite, error)
}

type gatingPolicyService struct {
	milestones repository.MilestoneRepository
	blocks     repository.BlockRepository
	views      StructureProvider
	sanitizer  *bluemonday.Policy
	logger     zerolog.Logger
}

// NewGatingPolicyService builds the gating configuration surface.
func NewGatingPolicyService(milestones repository.MilestoneRepository, blocks repository.BlockRepository, views StructureProvider, logger zerolog.Logger) GatingPolicyService {
	return &gatingPolicyService{
		milestones: milestones,
		blocks:     blocks,
		views:      views,
		sanitizer:  bluemonday.StrictPolicy(),
		logger:     logger.With().Str("component", "gating_policy_service").Logger(),
	}
}

func validateThreshold(name string, value *int) error {
	if value == nil {
		return nil
	}
	if *value < 0 || *value > 100 {
		return fmt.Errorf("%w: %s must be between 0 and 100", ErrGatingValidation, name)
	}
	return nil
}

// gatingNamespace derives the milestone namespace a prerequisite owns.
func gatingNamespace(key structure.BlockID) string {
	return key.String() + models.MilestoneNamespaceSuffix
}

func (s *gatingPolicyService) AddPrerequisite(ctx context.Context, courseID structure.CourseID, prereqKey structure.BlockID) error {
	block, err := s.subsectionBlock(ctx, courseID, prereqKey)
	if err != nil {
		return err
	}

	milestone := models.Milestone{
		Name:        prereqKey.String(),
		Namespace:   gatingNamespace(prereqKey),
		Description: s.sanitizer.Sanitize(block.DisplayName),
		Active:      true,
	}
	if err := s.milestones.EnsureMilestone(ctx, &milestone); err != nil {
		return err
	}

	fulfills := models.MilestoneRelationshipFulfills
	key := prereqKey.String()
	existing, err := s.milestones.ListContentLinks(ctx, courseID.String(), repository.ContentMilestoneFilter{
		UsageKey:     &key,
		Relationship: &fulfills,
	})
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}

	link := models.CourseContentMilestone{
		CourseID:     courseID.String(),
		UsageKey:     prereqKey.String(),
		MilestoneID:  milestone.ID,
		Relationship: models.MilestoneRelationshipFulfills,
		Active:       true,
	}
	if err := s.milestones.CreateContentLink(ctx, &link); err != nil {
		return err
	}

	s.invalidate(ctx, courseID)
	return nil
}

func (s *gatingPolicyService) RemovePrerequisite(ctx context.Context, courseID structure.CourseID, prereqKey structure.BlockID) error {
	milestone, err := s.milestones.GetMilestoneByNamespace(ctx, gatingNamespace(prereqKey))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	// Dropping the milestone severs both the fulfills link and every
	// gate that required it.
	if err := s.milestones.DeleteLinksByMilestone(ctx, milestone.ID); err != nil {
		return err
	}
	if err := s.milestones.DeleteMilestone(ctx, milestone.ID); err != nil {
		return err
	}

	s.invalidate(ctx, courseID)
	return nil
}

func (s *gatingPolicyService) SetRequiredContent(ctx context.Context, courseID structure.CourseID, gatedKey, prereqKey structure.BlockID, minScore, minCompletion *int) error {
	if _, err := s.subsectionBlock(ctx, courseID, gatedKey); err != nil {
		return err
	}

	if prereqKey == "" {
		if err := s.milestones.DeleteContentLinks(ctx, courseID.String(), gatedKey.String(), models.MilestoneRelationshipRequires); err != nil {
			return err
		}
		s.invalidate(ctx, courseID)
		return nil
	}

	if gatedKey == prereqKey {
		return fmt.Errorf("%w: a subsection cannot gate itself", ErrGatingValidation)
	}
	if err := validateThreshold("min_score", minScore); err != nil {
		return err
	}
	if err := validateThreshold("min_completion", minCompletion); err != nil {
		return err
	}
	if _, err := s.subsectionBlock(ctx, courseID, prereqKey); err != nil {
		return err
	}

	milestone, err := s.milestones.GetMilestoneByNamespace(ctx, gatingNamespace(prereqKey))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s is not a registered prerequisite", ErrGatingValidation, prereqKey)
		}
		return err
	}

	if err := s.checkNoCycle(ctx, courseID, gatedKey, prereqKey); err != nil {
		return err
	}

	link := models.CourseContentMilestone{
		CourseID:     courseID.String(),
		UsageKey:     gatedKey.String(),
		MilestoneID:  milestone.ID,
		Relationship: models.MilestoneRelationshipRequires,
		Active:       true,
	}
	if err := link.EncodeRequirements(models.MilestoneRequirements{
		MinScore:      minScore,
		MinCompletion: minCompletion,
	}); err != nil {
		return err
	}

	existing, err := s.milestones.GetRequiresLink(ctx, courseID.String(), gatedKey.String())
	switch {
	case err == nil:
		link.ID = existing.ID
		link.CreatedAt = existing.CreatedAt
		if err := s.milestones.UpdateContentLink(ctx, &link); err != nil {
			return err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		if err := s.milestones.CreateContentLink(ctx, &link); err != nil {
			return err
		}
	default:
		return err
	}

	s.invalidate(ctx, courseID)
	return nil
}

func (s *gatingPolicyService) GetRequiredContent(ctx context.Context, courseID structure.CourseID, gatedKey structure.BlockID) (*RequiredContent, error) {
	link, err := s.milestones.GetRequiresLink(ctx, courseID.String(), gatedKey.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	requirements, err := link.DecodeRequirements()
	if err != nil {
		s.logger.Warn().Err(err).
			Str("usage_key", gatedKey.String()).
			Msg("unreadable gating requirements document")
		requirements = models.MilestoneRequirements{}
	}

	return &RequiredContent{
		PrerequisiteKey: prerequisiteFromNamespace(link.Milestone.Namespace),
		MinScore:        requirements.MinScore,
		MinCompletion:   requirements.MinCompletion,
	}, nil
}

func (s *gatingPolicyService) IsPrerequisite(ctx context.Context, courseID structure.CourseID, key structure.BlockID) (bool, error) {
	fulfills := models.MilestoneRelationshipFulfills
	usageKey := key.String()
	links, err := s.milestones.ListContentLinks(ctx, courseID.String(), repository.ContentMilestoneFilter{
		UsageKey:     &usageKey,
		Relationship: &fulfills,
	})
	if err != nil {
		return false, err
	}

	return len(links) > 0, nil
}

func (s *gatingPolicyService) ListPrerequisites(ctx context.Context, courseID structure.CourseID) ([]Prerequisite, error) {
	fulfills := models.MilestoneRelationshipFulfills
	links, err := s.milestones.ListContentLinks(ctx, courseID.String(), repository.ContentMilestoneFilter{
		Relationship: &fulfills,
	})
	if err != nil {
		return nil, err
	}

	prereqs := make([]Prerequisite, 0, len(links))
	for _, link := range links {
		display := link.Milestone.Description
		if block, err := s.blocks.GetByUsageKey(ctx, courseID.String(), link.UsageKey); err == nil {
			display = s.sanitizer.Sanitize(block.DisplayName)
		}
		prereqs = append(prereqs, Prerequisite{
			UsageKey:    structure.BlockID(link.UsageKey),
			DisplayName: display,
			Namespace:   link.Milestone.Namespace,
		})
	}

	return prereqs, nil
}

// checkNoCycle walks the gate chain upward from the prerequisite and
// rejects the edge when it would loop back to the gated subsection.
func (s *gatingPolicyService) checkNoCycle(ctx context.Context, courseID structure.CourseID, gatedKey, prereqKey structure.BlockID) error {
	visited := map[structure.BlockID]struct{}{}
	current := prereqKey
	for {
		if current == gatedKey {
			return fmt.Errorf("%w: gating %s on %s would create a cycle", ErrGatingValidation, gatedKey, prereqKey)
		}
		if _, ok := visited[current]; ok {
			return nil
		}
		visited[current] = struct{}{}

		link, err := s.milestones.GetRequiresLink(ctx, courseID.String(), current.String())
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		current = prerequisiteFromNamespace(link.Milestone.Namespace)
		if current == "" {
			return nil
		}
	}
}

func (s *gatingPolicyService) subsectionBlock(ctx context.Context, courseID structure.CourseID, key structure.BlockID) (models.CourseBlock, error) {
	block, err := s.blocks.GetByUsageKey(ctx, courseID.String(), key.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.CourseBlock{}, fmt.Errorf("%w: unknown block %s", ErrGatingValidation, key)
		}
		return models.CourseBlock{}, err
	}
	if block.Category != structure.CategorySequential {
		return models.CourseBlock{}, fmt.Errorf("%w: %s is not a subsection", ErrGatingValidation, key)
	}

	return block, nil
}

func (s *gatingPolicyService) invalidate(ctx context.Context, courseID structure.CourseID) {
	s.views.Invalidate(ctx, courseID)
}

func prerequisiteFromNamespace(namespace string) structure.BlockID {
	suffix := models.MilestoneNamespaceSuffix
	if len(namespace) <= len(suffix) || namespace[len(namespace)-len(suffix):] != suffix {
		return ""
	}
	return structure.BlockID(namespace[:len(namespace)-len(suffix)])
}
