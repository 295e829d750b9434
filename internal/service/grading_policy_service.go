package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mirelo-edu/coursegate-api/internal/models"
	"github.com/mirelo-edu/coursegate-api/internal/repository"
)

// ErrInvalidPolicy indicates a grading policy document that fails schema
// or semantic validation. Nothing is written on failure.
var ErrInvalidPolicy = errors.New("invalid grading policy")

const policySchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["graders", "cutoffs"],
  "properties": {
    "graders": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["type", "weight"],
        "properties": {
          "type": {"type": "string", "minLength": 1},
          "name": {"type": "string"},
          "min_count": {"type": "integer", "minimum": 1},
          "drop_count": {"type": "integer", "minimum": 0},
          "weight": {"type": "number", "minimum": 0},
          "short_label": {"type": "string"}
        }
      }
    },
    "cutoffs": {
      "type": "object",
      "additionalProperties": {"type": "number", "minimum": 0, "maximum": 1}
    }
  }
}`

// GradingPolicyService stores and serves course grading policies. Policy
// documents are validated against a JSON schema before any write.
type GradingPolicyService interface {
	Get(ctx context.Context, courseID string) (models.GradingPolicy, error)
	Set(ctx context.Context, courseID string, document []byte) (models.GradingPolicy, error)
	Document(ctx context.Context, courseID string) (map[string]interface{}, error)
}

type gradingPolicyService struct {
	policies repository.PolicyRepository
	schema   *jsonschema.Schema
	logger   zerolog.Logger
}

// NewGradingPolicyService builds the service. The embedded schema is
// compiled once; compilation failure is a programming error.
func NewGradingPolicyService(policies repository.PolicyRepository, logger zerolog.Logger) (GradingPolicyService, error) {
	schema, err := jsonschema.CompileString("grading_policy.schema.json", policySchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile grading policy schema: %w", err)
	}

	return &gradingPolicyService{
		policies: policies,
		schema:   schema,
		logger:   logger.With().Str("component", "grading_policy_service").Logger(),
	}, nil
}

// DefaultGradingPolicy is used for courses without an authored policy:
// no graders, a single passing cutoff at 50 percent.
func DefaultGradingPolicy() models.GradingPolicy {
	return models.GradingPolicy{
		Graders: nil,
		Cutoffs: map[string]float64{"Pass": 0.5},
	}
}

func (s *gradingPolicyService) Get(ctx context.Context, courseID string) (models.GradingPolicy, error) {
	row, err := s.policies.GetByCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return DefaultGradingPolicy(), nil
		}
		return models.GradingPolicy{}, err
	}

	policy, err := row.DecodePolicy()
	if err != nil {
		s.logger.Warn().Err(err).Str("course_id", courseID).Msg("stored grading policy is unreadable")
		return DefaultGradingPolicy(), nil
	}

	return policy, nil
}

func (s *gradingPolicyService) Set(ctx context.Context, courseID string, document []byte) (models.GradingPolicy, error) {
	var decoded interface{}
	if err := json.Unmarshal(document, &decoded); err != nil {
		return models.GradingPolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := s.schema.Validate(decoded); err != nil {
		return models.GradingPolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}

	var policy models.GradingPolicy
	if err := json.Unmarshal(document, &policy); err != nil {
		return models.GradingPolicy{}, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := checkPolicySemantics(policy); err != nil {
		return models.GradingPolicy{}, err
	}

	row := models.CoursePolicy{
		CourseID: courseID,
		Document: datatypes.JSON(document),
	}
	if err := s.policies.Upsert(ctx, &row); err != nil {
		return models.GradingPolicy{}, err
	}

	return policy, nil
}

func (s *gradingPolicyService) Document(ctx context.Context, courseID string) (map[string]interface{}, error) {
	row, err := s.policies.GetByCourse(ctx, courseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			defaults, marshalErr := json.Marshal(DefaultGradingPolicy())
			if marshalErr != nil {
				return nil, marshalErr
			}
			var document map[string]interface{}
			if unmarshalErr := json.Unmarshal(defaults, &document); unmarshalErr != nil {
				return nil, unmarshalErr
			}
			return document, nil
		}
		return nil, err
	}

	var document map[string]interface{}
	if err := json.Unmarshal(row.Document, &document); err != nil {
		return nil, err
	}

	return document, nil
}

func checkPolicySemantics(policy models.GradingPolicy) error {
	for _, grader := range policy.Graders {
		if grader.SingleSection() {
			continue
		}
		if grader.DropCount >= grader.MinCount && grader.MinCount > 0 {
			return fmt.Errorf("%w: grader %q drops %d of %d sections", ErrInvalidPolicy, grader.Type, grader.DropCount, grader.MinCount)
		}
	}
	return nil
}
