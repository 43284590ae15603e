// Package progress derives an application's step list, current step, and
// overall status from the state of its dependent records. The derivation
// is the single source of truth for application stage; nothing else
// writes currentStep or overallStatus.
package progress

import (
	"certflow/pkg/domain"
)

// Step is one unit of the pipeline in its computed order.
type Step struct {
	Number     int
	Type       domain.StepType
	Title      string
	TemplateID domain.FormTemplateID
	FilledBy   domain.FilledBy
	IsRequired bool
	Completed  bool
	Metadata   map[string]string
}

// StepStatus renders a step's progress state for the read model.
func (s Step) StepStatus(currentStep int) string {
	switch {
	case s.Completed:
		return "completed"
	case s.Number == currentStep:
		return "current"
	default:
		return "upcoming"
	}
}

// StepView is the wire shape of one step.
type StepView struct {
	StepNumber  int               `json:"stepNumber"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	IsRequired  bool              `json:"isRequired"`
	IsCompleted bool              `json:"isCompleted"`
	Status      string            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Progress is the read model consumed by every role-specific view.
type Progress struct {
	CurrentStep        int        `json:"currentStep"`
	TotalSteps         int        `json:"totalSteps"`
	Steps              []StepView `json:"steps"`
	ProgressPercentage int        `json:"progressPercentage"`
	OverallStatus      string     `json:"overallStatus"`
}
