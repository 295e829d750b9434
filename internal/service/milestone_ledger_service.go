package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/observability"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// UnmetRequirement is one gate still closed for a learner.
type UnmetRequirement struct {
	GatedKey        structure.BlockID `json:"gated_key"`
	PrerequisiteKey structure.BlockID `json:"prerequisite_key"`
	MinScore        *int              `json:"min_score,omitempty"`
	MinCompletion   *int              `json:"min_completion,omitempty"`
}

// MilestoneLedgerService records which gating milestones a learner has
// discharged. Fulfillment is idempotent and never retracted.
type MilestoneLedgerService interface {
	// Fulfill marks the prerequisite's milestone as collected by the
	// learner. Repeated calls keep the original timestamp.
	Fulfill(ctx context.Context, userID uint, prereqKey structure.BlockID) error
	// HasFulfilled reports whether the learner holds the prerequisite's
	// milestone.
	HasFulfilled(ctx context.Context, userID uint, prereqKey structure.BlockID) (bool, error)
	// UnmetRequirements lists the course gates still closed for the
	// learner. Staff get an empty list.
	UnmetRequirements(ctx context.Context, userID uint, courseID structure.CourseID) ([]UnmetRequirement, error)
}

type milestoneLedgerService struct {
	milestones repository.MilestoneRepository
	roles      RoleProvider
	logger     zerolog.Logger
	now        func() time.Time
}

// NewMilestoneLedgerService builds the fulfillment ledger.
func NewMilestoneLedgerService(milestones repository.MilestoneRepository, roles RoleProvider, logger zerolog.Logger) MilestoneLedgerService {
	return &milestoneLedgerService{
		milestones: milestones,
		roles:      roles,
		logger:     logger.With().Str("component", "milestone_ledger_service").Logger(),
		now:        time.Now,
	}
}

func (s *milestoneLedgerService) Fulfill(ctx context.Context, userID uint, prereqKey structure.BlockID) error {
	milestone, err := s.milestones.GetMilestoneByNamespace(ctx, gatingNamespace(prereqKey))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// The prerequisite was unregistered concurrently; nothing to
			// record.
			return nil
		}
		return err
	}

	if err := s.milestones.AddUserMilestone(ctx, userID, milestone.ID, s.now().UTC()); err != nil {
		return err
	}
	observability.MilestoneFulfillments().Inc()

	s.logger.Info().
		Uint("user_id", userID).
		Str("prerequisite", prereqKey.String()).
		Msg("milestone fulfilled")

	return nil
}

func (s *milestoneLedgerService) HasFulfilled(ctx context.Context, userID uint, prereqKey structure.BlockID) (bool, error) {
	milestone, err := s.milestones.GetMilestoneByNamespace(ctx, gatingNamespace(prereqKey))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	return s.milestones.UserHasMilestone(ctx, userID, milestone.ID)
}

func (s *milestoneLedgerService) UnmetRequirements(ctx context.Context, userID uint, courseID structure.CourseID) ([]UnmetRequirement, error) {
	staff, err := s.roles.IsStaff(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if staff {
		return []UnmetRequirement{}, nil
	}

	requires := models.MilestoneRelationshipRequires
	links, err := s.milestones.ListContentLinks(ctx, courseID.String(), repository.ContentMilestoneFilter{
		Relationship: &requires,
	})
	if err != nil {
		return nil, err
	}

	heldIDs, err := s.milestones.ListUserMilestoneIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	held := make(map[uint]bool, len(heldIDs))
	for _, id := range heldIDs {
		held[id] = true
	}

	unmet := []UnmetRequirement{}
	for _, link := range links {
		if held[link.MilestoneID] {
			continue
		}
		requirements, err := link.DecodeRequirements()
		if err != nil {
			s.logger.Warn().Err(err).
				Str("usage_key", link.UsageKey).
				Msg("unreadable gating requirements document")
			requirements = models.MilestoneRequirements{}
		}
		unmet = append(unmet, UnmetRequirement{
			GatedKey:        structure.BlockID(link.UsageKey),
			PrerequisiteKey: prerequisiteFromNamespace(link.Milestone.Namespace),
			MinScore:        requirements.MinScore,
			MinCompletion:   requirements.MinCompletion,
		})
	}

	return unmet, nil
}
