package dto

// PrerequisiteCreateRequest marks a subsection as a prerequisite others
// can be gated on.
type PrerequisiteCreateRequest struct {
	UsageKey string `json:"usage_key" validate:"required"`
}

// PrerequisiteResponse describes one prerequisite subsection of a course.
type PrerequisiteResponse struct {
	UsageKey    string `json:"usage_key"`
	DisplayName string `json:"display_name"`
	Namespace   string `json:"namespace"`
}

// RequiredContentRequest creates, updates or removes the gate on a
// subsection. A null prerequisite key removes any existing gate.
type RequiredContentRequest struct {
	GatedUsageKey  string  `json:"gated_usage_key" validate:"required"`
	PrereqUsageKey *string `json:"prereq_usage_key"`
	MinScore       *int    `json:"min_score" validate:"omitempty,min=0,max=100"`
	MinCompletion  *int    `json:"min_completion" validate:"omitempty,min=0,max=100"`
}

// RequiredContentResponse reports the gate configured on a subsection.
// PrereqUsageKey is empty when the subsection is ungated.
type RequiredContentResponse struct {
	GatedUsageKey  string `json:"gated_usage_key"`
	PrereqUsageKey string `json:"prereq_usage_key,omitempty"`
	MinScore       *int   `json:"min_score,omitempty"`
	MinCompletion  *int   `json:"min_completion,omitempty"`
}

// UnmetRequirementResponse is one block still locked for the learner.
type UnmetRequirementResponse struct {
	UsageKey    string `json:"usage_key"`
	Requirement string `json:"requirement,omitempty"`
}
