// SPDX-License-Identifier: Apache-2.0

// Package orchestrator drives the fixed day-0 provisioning sequence for one
// site: for every step it consults the workflow engine's idempotency guard,
// skips work that already completed, records outcomes, and stops at the
// first failure. It never retries a step itself; re-invoking Run resumes
// where the last attempt left off.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/domain"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/netcalc"
)

// Workflow is the slice of the workflow engine the driver needs.
type Workflow interface {
	CreateDeployment(ctx context.Context, siteID, orgID, siteName string) (*domain.DeploymentState, error)
	GetDeployment(ctx context.Context, siteID string) (*domain.DeploymentState, error)
	StartStep(ctx context.Context, siteID string, stepNum int, stepName string) (*domain.StepState, error)
	CompleteStep(ctx context.Context, siteID string, stepNum int, result map[string]any) (*domain.StepState, error)
	FailStep(ctx context.Context, siteID string, stepNum int, stepErr string) (*domain.StepState, error)
	IsStepCompleted(ctx context.Context, siteID string, stepNum int) bool
}

// MistAPI is the slice of the Mist client the provisioning steps need.
type MistAPI interface {
	GetSelf(ctx context.Context) (map[string]any, error)
	CreateSite(ctx context.Context, orgID string, site map[string]any) (map[string]any, error)
	UpdateSiteConfig(ctx context.Context, siteID string, cfg map[string]any) (map[string]any, error)
	ClaimDevices(ctx context.Context, orgID string, claimCodes []string) (map[string]any, error)
	AssignDevices(ctx context.Context, orgID, siteID string, serials []string, managed bool) (map[string]any, error)
}

// ProvisionRequest describes one site to bring up.
type ProvisionRequest struct {
	SiteID   string // deployment key, unique per site
	OrgID    string
	SiteName string

	ZoneID  int // 1-255, selects the zone IP bands
	SiteNum int // 1-255, selects the site inside the zone

	Address     string
	Timezone    string
	CountryCode string

	GatewayTemplateID string
	NetworkTemplateID string
	RFTemplateID      string

	ClaimCodes    []string
	SerialNumbers []string
}

// Orchestrator runs day-0 sequences.
type Orchestrator struct {
	workflow Workflow
	mist     MistAPI
	calc     *netcalc.Calculator
	logger   *slog.Logger
}

// New creates an Orchestrator. All collaborators are required except the
// logger, which falls back to slog.Default().
func New(workflow Workflow, mist MistAPI, calc *netcalc.Calculator, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		workflow: workflow,
		mist:     mist,
		calc:     calc,
		logger:   logger,
	}
}

// Run executes the day-0 sequence for req. A step failure is recorded on the
// deployment and stops the sequence; it is data, not an error. Errors are
// reserved for invalid requests and state store trouble. Calling Run again
// for the same site resumes after the last completed step.
func (o *Orchestrator) Run(ctx context.Context, req ProvisionRequest) (*domain.DeploymentState, error) {
	if req.SiteID == "" {
		return nil, domain.ErrInvalidSiteID
	}
	if _, err := o.calc.SiteSubnets(req.ZoneID, req.SiteNum); err != nil {
		return nil, err
	}

	state, err := o.workflow.CreateDeployment(ctx, req.SiteID, req.OrgID, req.SiteName)
	if errors.Is(err, domain.ErrDeploymentExists) {
		state, err = o.workflow.GetDeployment(ctx, req.SiteID)
		if err != nil {
			return nil, err
		}
		switch state.Status {
		case domain.DeploymentCompleted:
			return state, nil
		case domain.DeploymentFailed:
			// Recovery is an explicit operator decision (restart), never
			// an implicit side effect of re-provisioning.
			return state, nil
		}
		o.logger.Info("resuming deployment", "site_id", req.SiteID, "current_step", state.CurrentStep)
	} else if err != nil {
		return nil, err
	}

	rc := &runContext{req: req, prior: state}

	for _, step := range o.sequence() {
		if o.workflow.IsStepCompleted(ctx, req.SiteID, step.num) {
			if err := step.recover(rc); err != nil {
				return nil, fmt.Errorf("recover step %d (%s): %w", step.num, step.name, err)
			}
			o.logger.Info("step already completed, skipping",
				"site_id", req.SiteID,
				"step", step.num,
				"name", step.name,
			)
			continue
		}

		if _, err := o.workflow.StartStep(ctx, req.SiteID, step.num, step.name); err != nil {
			return nil, err
		}

		result, runErr := step.run(ctx, rc)
		if runErr != nil {
			if _, err := o.workflow.FailStep(ctx, req.SiteID, step.num, runErr.Error()); err != nil {
				return nil, err
			}
			o.logger.Warn("provisioning stopped",
				"site_id", req.SiteID,
				"step", step.num,
				"name", step.name,
				"error", runErr,
			)
			return o.workflow.GetDeployment(ctx, req.SiteID)
		}

		if _, err := o.workflow.CompleteStep(ctx, req.SiteID, step.num, result); err != nil {
			return nil, err
		}
	}

	return o.workflow.GetDeployment(ctx, req.SiteID)
}

// runContext carries outputs between steps within one Run, and recovers
// them from persisted step results when a completed step is skipped.
type runContext struct {
	req   ProvisionRequest
	prior *domain.DeploymentState

	alloc      netcalc.SiteAllocation
	mistSiteID string
}

// storedResult returns the persisted result payload of a completed step.
func (rc *runContext) storedResult(stepNum int) map[string]any {
	if rc.prior == nil {
		return nil
	}
	step := rc.prior.Step(stepNum)
	if step == nil || step.Status != domain.StepCompleted {
		return nil
	}
	return step.Result
}
