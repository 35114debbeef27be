// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"errors"
	"fmt"
)

// stepDef is one entry of the day-0 sequence. run performs the side-effecting
// work and returns the result payload to persist; recover rebuilds in-run
// context from a previously persisted result when the step is skipped.
type stepDef struct {
	num     int
	name    string
	run     func(ctx context.Context, rc *runContext) (map[string]any, error)
	recover func(rc *runContext) error
}

var errSiteIDMissing = errors.New("create-site result is missing the mist site id")

func noRecover(*runContext) error { return nil }

// sequence returns the fixed day-0 step list. Step numbers are stable: they
// key the persisted progress, so inserting a step means appending, never
// renumbering.
func (o *Orchestrator) sequence() []stepDef {
	vlanStep := func(num int, name, vlan string, subnetOf func(rc *runContext) string) stepDef {
		return stepDef{
			num:  num,
			name: name,
			run: func(ctx context.Context, rc *runContext) (map[string]any, error) {
				subnet := subnetOf(rc)
				if _, err := o.mist.UpdateSiteConfig(ctx, rc.mistSiteID, map[string]any{
					"vlans": map[string]any{vlan: map[string]any{"subnet": subnet}},
				}); err != nil {
					return nil, err
				}
				return map[string]any{"vlan": vlan, "subnet": subnet}, nil
			},
			recover: noRecover,
		}
	}

	return []stepDef{
		{
			num:  1,
			name: "verify-api-access",
			run: func(ctx context.Context, rc *runContext) (map[string]any, error) {
				self, err := o.mist.GetSelf(ctx)
				if err != nil {
					return nil, err
				}
				return map[string]any{"email": self["email"]}, nil
			},
			recover: noRecover,
		},
		{
			num:  2,
			name: "calculate-subnets",
			run: func(_ context.Context, rc *runContext) (map[string]any, error) {
				alloc, err := o.calc.SiteSubnets(rc.req.ZoneID, rc.req.SiteNum)
				if err != nil {
					return nil, err
				}
				rc.alloc = alloc
				return map[string]any{
					"zone_id":           alloc.ZoneID,
					"site_id":           alloc.SiteID,
					"management_subnet": alloc.ManagementSubnet,
					"data_subnet":       alloc.DataSubnet,
					"voice_subnet":      alloc.VoiceSubnet,
					"guest_subnet":      alloc.GuestSubnet,
					"iot_subnet":        alloc.IoTSubnet,
				}, nil
			},
			recover: func(rc *runContext) error {
				// The calculator is deterministic; recomputing beats parsing
				// the stored payload.
				alloc, err := o.calc.SiteSubnets(rc.req.ZoneID, rc.req.SiteNum)
				if err != nil {
					return err
				}
				rc.alloc = alloc
				return nil
			},
		},
		{
			num:  3,
			name: "create-site",
			run: func(ctx context.Context, rc *runContext) (map[string]any, error) {
				created, err := o.mist.CreateSite(ctx, rc.req.OrgID, map[string]any{
					"name":         rc.req.SiteName,
					"address":      rc.req.Address,
					"timezone":     rc.req.Timezone,
					"country_code": rc.req.CountryCode,
				})
				if err != nil {
					return nil, err
				}
				mistSiteID, _ := created["id"].(string)
				if mistSiteID == "" {
					return nil, errSiteIDMissing
				}
				rc.mistSiteID = mistSiteID
				return map[string]any{"mist_site_id": mistSiteID}, nil
			},
			recover: func(rc *runContext) error {
				result := rc.storedResult(3)
				mistSiteID, _ := result["mist_site_id"].(string)
				if mistSiteID == "" {
					return errSiteIDMissing
				}
				rc.mistSiteID = mistSiteID
				return nil
			},
		},
		o.bindTemplateStep(4, "bind-network-template", "networktemplate_id", func(rc *runContext) string { return rc.req.NetworkTemplateID }),
		o.bindTemplateStep(5, "bind-gateway-template", "gatewaytemplate_id", func(rc *runContext) string { return rc.req.GatewayTemplateID }),
		o.bindTemplateStep(6, "bind-rf-template", "rftemplate_id", func(rc *runContext) string { return rc.req.RFTemplateID }),
		vlanStep(7, "configure-management-vlan", "management", func(rc *runContext) string { return rc.alloc.ManagementSubnet }),
		vlanStep(8, "configure-data-vlan", "data", func(rc *runContext) string { return rc.alloc.DataSubnet }),
		vlanStep(9, "configure-voice-vlan", "voice", func(rc *runContext) string { return rc.alloc.VoiceSubnet }),
		vlanStep(10, "configure-guest-vlan", "guest", func(rc *runContext) string { return rc.alloc.GuestSubnet }),
		vlanStep(11, "configure-iot-vlan", "iot", func(rc *runContext) string { return rc.alloc.IoTSubnet }),
		{
			num:  12,
			name: "claim-devices",
			run: func(ctx context.Context, rc *runContext) (map[string]any, error) {
				if len(rc.req.ClaimCodes) == 0 {
					return map[string]any{"claimed": 0, "skipped": true}, nil
				}
				if _, err := o.mist.ClaimDevices(ctx, rc.req.OrgID, rc.req.ClaimCodes); err != nil {
					return nil, err
				}
				return map[string]any{"claimed": len(rc.req.ClaimCodes)}, nil
			},
			recover: noRecover,
		},
		{
			num:  13,
			name: "assign-devices",
			run: func(ctx context.Context, rc *runContext) (map[string]any, error) {
				if len(rc.req.SerialNumbers) == 0 {
					return map[string]any{"assigned": 0, "skipped": true}, nil
				}
				if _, err := o.mist.AssignDevices(ctx, rc.req.OrgID, rc.mistSiteID, rc.req.SerialNumbers, true); err != nil {
					return nil, err
				}
				return map[string]any{"assigned": len(rc.req.SerialNumbers)}, nil
			},
			recover: noRecover,
		},
	}
}

func (o *Orchestrator) bindTemplateStep(num int, name, field string, idOf func(rc *runContext) string) stepDef {
	return stepDef{
		num:  num,
		name: name,
		run: func(ctx context.Context, rc *runContext) (map[string]any, error) {
			templateID := idOf(rc)
			if templateID == "" {
				return map[string]any{"skipped": true}, nil
			}
			if _, err := o.mist.UpdateSiteConfig(ctx, rc.mistSiteID, map[string]any{field: templateID}); err != nil {
				return nil, fmt.Errorf("bind %s: %w", field, err)
			}
			return map[string]any{field: templateID}, nil
		},
		recover: noRecover,
	}
}
