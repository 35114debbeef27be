// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"context"

	"github.com/ericcgu/eg-mist-orchestration-core/internal/domain"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/netcalc"
	"github.com/ericcgu/eg-mist-orchestration-core/internal/orchestrator"
)

type DeploymentManager interface {
	CreateDeployment(ctx context.Context, siteID, orgID, siteName string) (*domain.DeploymentState, error)
	GetDeployment(ctx context.Context, siteID string) (*domain.DeploymentState, error)
	RestartDeployment(ctx context.Context, siteID string) (*domain.DeploymentState, error)
	ListDeployments(ctx context.Context) []string
}

type Provisioner interface {
	Run(ctx context.Context, req orchestrator.ProvisionRequest) (*domain.DeploymentState, error)
}

type SubnetPlanner interface {
	SiteSubnets(zoneID, siteID int) (netcalc.SiteAllocation, error)
	Zone(zoneID int) (netcalc.ZoneSummary, error)
}
