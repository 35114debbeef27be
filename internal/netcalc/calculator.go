// SPDX-License-Identifier: Apache-2.0

// Package netcalc derives deterministic, non-overlapping site subnets from
// zone and site identifiers, replacing spreadsheet-driven IP planning.
// It is pure and stateless.
package netcalc

import (
	"fmt"
	"net/netip"
)

// Second-octet offsets carving the 10.0.0.0/8 supernet into per-VLAN bands.
// Zone z, site s maps to 10.{offset+z}.{s}.0/24 in each band.
const (
	managementOffset = 0
	dataOffset       = 100
	voiceOffset      = 150
	guestOffset      = 200
	iotOffset        = 220
)

const maxID = 255

// DefaultSupernet is the address space all site subnets are carved from.
const DefaultSupernet = "10.0.0.0/8"

// SiteAllocation holds the subnet assignments for one site.
type SiteAllocation struct {
	ZoneID           int    `json:"zone_id"`
	SiteID           int    `json:"site_id"`
	ManagementSubnet string `json:"management_subnet"`
	DataSubnet       string `json:"data_subnet"`
	VoiceSubnet      string `json:"voice_subnet"`
	GuestSubnet      string `json:"guest_subnet"`
	IoTSubnet        string `json:"iot_subnet"`
}

// Subnets returns the five allocations in band order.
func (a SiteAllocation) Subnets() []string {
	return []string{
		a.ManagementSubnet,
		a.DataSubnet,
		a.VoiceSubnet,
		a.GuestSubnet,
		a.IoTSubnet,
	}
}

// ZoneSummary describes the /16 ranges an entire zone occupies.
type ZoneSummary struct {
	ZoneID          int    `json:"zone_id"`
	ManagementRange string `json:"management_range"`
	DataRange       string `json:"data_range"`
	VoiceRange      string `json:"voice_range"`
	GuestRange      string `json:"guest_range"`
	IoTRange        string `json:"iot_range"`
	MaxSites        int    `json:"max_sites"`
}

// Calculator slices a /8 supernet into per-zone, per-site /24 subnets.
type Calculator struct {
	supernet netip.Prefix
}

// New returns a Calculator over DefaultSupernet.
func New() *Calculator {
	c, err := NewWithSupernet(DefaultSupernet)
	if err != nil {
		panic(err) // DefaultSupernet is a valid constant
	}
	return c
}

// NewWithSupernet returns a Calculator over the given supernet CIDR.
func NewWithSupernet(supernet string) (*Calculator, error) {
	prefix, err := netip.ParsePrefix(supernet)
	if err != nil {
		return nil, fmt.Errorf("parse supernet %q: %w", supernet, err)
	}
	return &Calculator{supernet: prefix}, nil
}

// SiteSubnets calculates the /24 assignments for a site. Zone and site IDs
// must both be in 1..255; the same inputs always produce the same subnets,
// and distinct inputs never overlap.
func (c *Calculator) SiteSubnets(zoneID, siteID int) (SiteAllocation, error) {
	if zoneID < 1 || zoneID > maxID {
		return SiteAllocation{}, fmt.Errorf("zone id must be 1-%d, got %d", maxID, zoneID)
	}
	if siteID < 1 || siteID > maxID {
		return SiteAllocation{}, fmt.Errorf("site id must be 1-%d, got %d", maxID, siteID)
	}

	base := c.supernet.Addr().As4()
	subnet := func(offset int) string {
		return fmt.Sprintf("%d.%d.%d.0/24", base[0], offset+zoneID, siteID)
	}

	return SiteAllocation{
		ZoneID:           zoneID,
		SiteID:           siteID,
		ManagementSubnet: subnet(managementOffset),
		DataSubnet:       subnet(dataOffset),
		VoiceSubnet:      subnet(voiceOffset),
		GuestSubnet:      subnet(guestOffset),
		IoTSubnet:        subnet(iotOffset),
	}, nil
}

// Zone returns the /16 range summary for a whole zone.
func (c *Calculator) Zone(zoneID int) (ZoneSummary, error) {
	if zoneID < 1 || zoneID > maxID {
		return ZoneSummary{}, fmt.Errorf("zone id must be 1-%d, got %d", maxID, zoneID)
	}

	base := c.supernet.Addr().As4()
	band := func(offset int) string {
		return fmt.Sprintf("%d.%d.0.0/16", base[0], offset+zoneID)
	}

	return ZoneSummary{
		ZoneID:          zoneID,
		ManagementRange: band(managementOffset),
		DataRange:       band(dataOffset),
		VoiceRange:      band(voiceOffset),
		GuestRange:      band(guestOffset),
		IoTRange:        band(iotOffset),
		MaxSites:        maxID,
	}, nil
}
