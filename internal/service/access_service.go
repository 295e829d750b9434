package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// AccessService decides whether a learner may load a block.
type AccessService interface {
	// CanLoad evaluates visibility and gating for one block.
	CanLoad(ctx context.Context, userID uint, courseID structure.CourseID, usageKey structure.BlockID) (AccessResult, error)
}

type accessService struct {
	configs    repository.CourseConfigRepository
	milestones repository.MilestoneRepository
	blocks     repository.BlockRepository
	views      StructureProvider
	ledger     MilestoneLedgerService
	roles      RoleProvider
	logger     zerolog.Logger
	now        func() time.Time
}

// NewAccessService builds the access checker.
func NewAccessService(configs repository.CourseConfigRepository, milestones repository.MilestoneRepository, blocks repository.BlockRepository, views StructureProvider, ledger MilestoneLedgerService, roles RoleProvider, logger zerolog.Logger) AccessService {
	return &accessService{
		configs:    configs,
		milestones: milestones,
		blocks:     blocks,
		views:      views,
		ledger:     ledger,
		roles:      roles,
		logger:     logger.With().Str("component", "access_service").Logger(),
		now:        time.Now,
	}
}

func (s *accessService) CanLoad(ctx context.Context, userID uint, courseID structure.CourseID, usageKey structure.BlockID) (AccessResult, error) {
	staff, err := s.roles.IsStaff(ctx, userID, courseID)
	if err != nil {
		return AccessResult{}, err
	}
	if staff {
		return AccessResult{Decision: AccessVisible}, nil
	}

	view, err := s.views.GetCourseView(ctx, courseID, true)
	if err != nil {
		return AccessResult{}, err
	}
	node, err := view.Get(usageKey)
	if err != nil {
		return AccessResult{}, err
	}

	// An unfulfilled gate wins over visibility rules: the learner is told
	// what to complete, not shown a blank.
	gated, err := s.gatedResult(ctx, userID, courseID, view, usageKey)
	if err != nil {
		return AccessResult{}, err
	}
	if gated != nil {
		return *gated, nil
	}

	if node.VisibleToStaffOnly {
		return AccessResult{Decision: AccessHidden}, nil
	}
	if node.StartAt != nil && node.StartAt.After(s.now()) {
		return AccessResult{Decision: AccessHidden}, nil
	}

	return AccessResult{Decision: AccessVisible}, nil
}

// gatedResult returns a gated decision when the containing subsection has
// an unfulfilled prerequisite, nil otherwise.
func (s *accessService) gatedResult(ctx context.Context, userID uint, courseID structure.CourseID, view *structure.View, usageKey structure.BlockID) (*AccessResult, error) {
	cfg, err := s.configs.Get(ctx, courseID.String())
	if err != nil {
		return nil, err
	}
	if !cfg.EnableSubsectionGating {
		return nil, nil
	}

	subsection, ok := view.SubsectionOf(usageKey)
	if !ok {
		return nil, nil
	}

	link, err := s.milestones.GetRequiresLink(ctx, courseID.String(), subsection.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	prereqKey := prerequisiteFromNamespace(link.Milestone.Namespace)
	fulfilled, err := s.ledger.HasFulfilled(ctx, userID, prereqKey)
	if err != nil {
		return nil, err
	}
	if fulfilled {
		return nil, nil
	}

	return &AccessResult{
		Decision:    AccessGated,
		Requirement: s.describeRequirement(ctx, courseID, prereqKey, link),
	}, nil
}

// describeRequirement renders a human-readable account of a closed gate.
func (s *accessService) describeRequirement(ctx context.Context, courseID structure.CourseID, prereqKey structure.BlockID, link models.CourseContentMilestone) string {
	display := prereqKey.String()
	if block, err := s.blocks.GetByUsageKey(ctx, courseID.String(), prereqKey.String()); err == nil && block.DisplayName != "" {
		display = block.DisplayName
	}

	requirements, err := link.DecodeRequirements()
	if err != nil {
		s.logger.Warn().Err(err).
			Str("usage_key", link.UsageKey).
			Msg("unreadable gating requirements document")
		return fmt.Sprintf("Complete %q to unlock this content", display)
	}

	switch {
	case requirements.MinScore != nil && requirements.MinCompletion != nil:
		return fmt.Sprintf("Score at least %d%% and complete at least %d%% of %q to unlock this content",
			*requirements.MinScore, *requirements.MinCompletion, display)
	case requirements.MinScore != nil:
		return fmt.Sprintf("Score at least %d%% on %q to unlock this content", *requirements.MinScore, display)
	case requirements.MinCompletion != nil:
		return fmt.Sprintf("Complete at least %d%% of %q to unlock this content", *requirements.MinCompletion, display)
	default:
		return fmt.Sprintf("Complete %q to unlock this content", display)
	}
}
