package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// MilestoneNamespaceSuffix is appended to a gating block's usage key to
// form the namespace of the milestone that block materializes. Nothing
// outside the gating engine may create milestones in this namespace.
const MilestoneNamespaceSuffix = ".gating"

// Milestone is an abstract, named obligation. A milestone in the gating
// namespace is created lazily when the first prerequisite naming it is
// added and removed with the last one.
type Milestone struct {
	ID          uint      `gorm:"primaryKey"`
	Name        string    `gorm:"size:255;not null"`
	Namespace   string    `gorm:"size:255;not null;uniqueIndex"`
	Description string    `gorm:"size:512"`
	Active      bool      `gorm:"not null;default:true"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Relationship values linking course content to a milestone.
const (
	// MilestoneRelationshipFulfills marks the block whose completion
	// discharges the milestone.
	MilestoneRelationshipFulfills = "fulfills"
	// MilestoneRelationshipRequires marks a block locked behind the
	// milestone.
	MilestoneRelationshipRequires = "requires"
)

// CourseContentMilestone links one course block to a milestone, either as
// the fulfilling block or as a gated one. Requires-links carry the score
// and completion thresholds as a JSON requirements document.
type CourseContentMilestone struct {
	ID           uint           `gorm:"primaryKey"`
	CourseID     string         `gorm:"size:255;not null;index:idx_ccm_course_content,priority:1"`
	UsageKey     string         `gorm:"size:255;not null;index:idx_ccm_course_content,priority:2"`
	MilestoneID  uint           `gorm:"not null;index"`
	Relationship string         `gorm:"size:32;not null;index"`
	Requirements datatypes.JSON `gorm:"type:json"`
	Active       bool           `gorm:"not null;default:true"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Milestone    Milestone      `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// MilestoneRequirements is the decoded requirements document of a
// requires-link.
type MilestoneRequirements struct {
	MinScore      *int `json:"min_score,omitempty"`
	MinCompletion *int `json:"min_completion,omitempty"`
}

// DecodeRequirements parses the requirements document. A missing or empty
// document decodes to the zero value.
func (c CourseContentMilestone) DecodeRequirements() (MilestoneRequirements, error) {
	var requirements MilestoneRequirements
	if len(c.Requirements) == 0 {
		return requirements, nil
	}
	if err := json.Unmarshal(c.Requirements, &requirements); err != nil {
		return MilestoneRequirements{}, err
	}
	return requirements, nil
}

// EncodeRequirements serialises the requirements document onto the link.
func (c *CourseContentMilestone) EncodeRequirements(requirements MilestoneRequirements) error {
	encoded, err := json.Marshal(requirements)
	if err != nil {
		return err
	}
	c.Requirements = datatypes.JSON(encoded)
	return nil
}

// UserMilestone records that a learner has discharged a milestone.
// Insertion is idempotent per (user, milestone); rows are never retracted
// automatically.
type UserMilestone struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"not null;index:idx_user_milestone,unique,priority:1"`
	MilestoneID uint      `gorm:"not null;index:idx_user_milestone,unique,priority:2"`
	CollectedAt time.Time `gorm:"not null"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
