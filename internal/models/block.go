package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// CourseBlock is one authored node of a course hierarchy. Rows are written
// by the authoring pipeline and read-only to this service. Children holds
// the ordered usage keys of child blocks; the same child may be listed by
// several parents.
type CourseBlock struct {
	ID                 uint           `gorm:"primaryKey"`
	CourseID           string         `gorm:"size:255;not null;index:idx_course_usage,unique,priority:1"`
	UsageKey           string         `gorm:"size:255;not null;index:idx_course_usage,unique,priority:2"`
	Category           string         `gorm:"size:64;not null;index"`
	DisplayName        string         `gorm:"size:255"`
	Children           datatypes.JSON `gorm:"type:json"`
	Graded             bool           `gorm:"not null;default:false"`
	Format             string         `gorm:"size:128"`
	Weight             *float64
	MaxScore           float64 `gorm:"not null;default:0"`
	DueAt              *time.Time
	VisibleToStaffOnly bool `gorm:"not null;default:false"`
	StartAt            *time.Time
	Position           int       `gorm:"not null;default:0"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ChildKeys decodes the ordered child usage keys.
func (b CourseBlock) ChildKeys() []string {
	if len(b.Children) == 0 {
		return nil
	}
	var keys []string
	if err := json.Unmarshal(b.Children, &keys); err != nil {
		return nil
	}
	return keys
}

// SetChildKeys encodes the ordered child usage keys.
func (b *CourseBlock) SetChildKeys(keys []string) error {
	encoded, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	b.Children = datatypes.JSON(encoded)
	return nil
}
