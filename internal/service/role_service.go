package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
	"github.com/mirelo-edu/coursegate-api/internal/structure"
)

// ErrInvalidRole indicates an unrecognised course role name.
var ErrInvalidRole = errors.New("invalid course role")

// RoleService manages course access roles and answers the staff question
// for the gating and visibility checks.
type RoleService interface {
	RoleProvider
	Grant(ctx context.Context, userID uint, courseID structure.CourseID, role string) error
	Revoke(ctx context.Context, userID uint, courseID structure.CourseID, role string) error
	ListCourseRoles(ctx context.Context, courseID structure.CourseID) ([]models.CourseAccessRole, error)
}

type roleService struct {
	roles  repository.RoleRepository
	logger zerolog.Logger
}

// NewRoleService builds the role surface.
func NewRoleService(roles repository.RoleRepository, logger zerolog.Logger) RoleService {
	return &roleService{
		roles:  roles,
		logger: logger.With().Str("component", "role_service").Logger(),
	}
}

func (s *roleService) IsStaff(ctx context.Context, userID uint, courseID structure.CourseID) (bool, error) {
	rows, err := s.roles.ListByUser(ctx, userID, courseID.String())
	if err != nil {
		return false, err
	}

	for _, row := range rows {
		if row.Elevated() {
			return true, nil
		}
	}
	return false, nil
}

func (s *roleService) Grant(ctx context.Context, userID uint, courseID structure.CourseID, role string) error {
	if !validRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRole, role)
	}

	row := models.CourseAccessRole{
		UserID:   userID,
		CourseID: courseID.String(),
		Role:     role,
	}
	if err := s.roles.Grant(ctx, &row); err != nil {
		return err
	}

	s.logger.Info().
		Uint("user_id", userID).
		Str("course_id", courseID.String()).
		Str("role", role).
		Msg("course role granted")
	return nil
}

func (s *roleService) Revoke(ctx context.Context, userID uint, courseID structure.CourseID, role string) error {
	if !validRole(role) {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidRole, role)
	}
	return s.roles.Revoke(ctx, userID, courseID.String(), role)
}

func (s *roleService) ListCourseRoles(ctx context.Context, courseID structure.CourseID) ([]models.CourseAccessRole, error) {
	return s.roles.ListByCourse(ctx, courseID.String())
}

func validRole(role string) bool {
	switch role {
	case models.RoleStaff, models.RoleInstructor, models.RoleAdmin:
		return true
	default:
		return false
	}
}
