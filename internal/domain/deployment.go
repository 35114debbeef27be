// SPDX-License-Identifier: Apache-2.0

package domain

import "time"

type DeploymentStatus string

const (
	DeploymentInProgress DeploymentStatus = "IN_PROGRESS"
	DeploymentCompleted  DeploymentStatus = "COMPLETED"
	DeploymentFailed     DeploymentStatus = "FAILED"
)

type StepStatus string

const (
	StepPending    StepStatus = "PENDING"
	StepInProgress StepStatus = "IN_PROGRESS"
	StepCompleted  StepStatus = "COMPLETED"
	StepFailed     StepStatus = "FAILED"
)

// DefaultTotalSteps is the expected step count of the day-0 workflow.
const DefaultTotalSteps = 13

// StepState is one unit of provisioning work inside a deployment. Steps have
// no identity of their own; they live and persist only inside their
// DeploymentState.
type StepState struct {
	StepNum     int            `json:"step_num"`
	Name        string         `json:"name"`
	Status      StepStatus     `json:"status"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// Terminal reports whether the step can no longer transition.
func (s *StepState) Terminal() bool {
	return s.Status == StepCompleted || s.Status == StepFailed
}

// DeploymentState is the unit of persistence and consistency: the full
// provisioning progress of one site, stored as a single record under
// deployment:{site_id}. Version increases by one on every persisted mutation
// and backs the compare-and-swap write path.
type DeploymentState struct {
	SiteID      string             `json:"site_id"`
	OrgID       string             `json:"org_id"`
	SiteName    string             `json:"site_name"`
	Status      DeploymentStatus   `json:"status"`
	Steps       map[int]*StepState `json:"steps"`
	CurrentStep int                `json:"current_step,omitempty"`
	TotalSteps  int                `json:"total_steps"`
	Version     int64              `json:"version"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// CompletedSteps counts steps in COMPLETED status.
func (d *DeploymentState) CompletedSteps() int {
	n := 0
	for _, s := range d.Steps {
		if s.Status == StepCompleted {
			n++
		}
	}
	return n
}

// Terminal reports whether the deployment reached COMPLETED or FAILED.
func (d *DeploymentState) Terminal() bool {
	return d.Status == DeploymentCompleted || d.Status == DeploymentFailed
}

// Step returns the step for num, or nil when it was never started.
func (d *DeploymentState) Step(num int) *StepState {
	if d.Steps == nil {
		return nil
	}
	return d.Steps[num]
}
