// SPDX-License-Identifier: Apache-2.0

package netcalc

import "testing"

func TestSiteSubnets(t *testing.T) {
	c := New()

	tests := []struct {
		zoneID int
		siteID int
		want   SiteAllocation
	}{
		{
			zoneID: 1,
			siteID: 1,
			want: SiteAllocation{
				ZoneID:           1,
				SiteID:           1,
				ManagementSubnet: "10.1.1.0/24",
				DataSubnet:       "10.101.1.0/24",
				VoiceSubnet:      "10.151.1.0/24",
				GuestSubnet:      "10.201.1.0/24",
				IoTSubnet:        "10.221.1.0/24",
			},
		},
		{
			zoneID: 5,
			siteID: 12,
			want: SiteAllocation{
				ZoneID:           5,
				SiteID:           12,
				ManagementSubnet: "10.5.12.0/24",
				DataSubnet:       "10.105.12.0/24",
				VoiceSubnet:      "10.155.12.0/24",
				GuestSubnet:      "10.205.12.0/24",
				IoTSubnet:        "10.225.12.0/24",
			},
		},
	}

	for _, tt := range tests {
		got, err := c.SiteSubnets(tt.zoneID, tt.siteID)
		if err != nil {
			t.Fatalf("SiteSubnets(%d, %d): %v", tt.zoneID, tt.siteID, err)
		}
		if got != tt.want {
			t.Errorf("SiteSubnets(%d, %d) = %+v, want %+v", tt.zoneID, tt.siteID, got, tt.want)
		}
	}
}

func TestSiteSubnetsDeterministic(t *testing.T) {
	c := New()

	a, err := c.SiteSubnets(3, 7)
	if err != nil {
		t.Fatalf("SiteSubnets: %v", err)
	}
	b, err := c.SiteSubnets(3, 7)
	if err != nil {
		t.Fatalf("SiteSubnets: %v", err)
	}
	if a != b {
		t.Fatalf("same inputs yielded different allocations: %+v vs %+v", a, b)
	}
}

func TestSiteSubnetsDisjointBands(t *testing.T) {
	c := New()

	alloc, err := c.SiteSubnets(2, 9)
	if err != nil {
		t.Fatalf("SiteSubnets: %v", err)
	}

	seen := map[string]bool{}
	for _, subnet := range alloc.Subnets() {
		if seen[subnet] {
			t.Fatalf("duplicate subnet %s in allocation %+v", subnet, alloc)
		}
		seen[subnet] = true
	}
}

func TestSiteSubnetsRejectsOutOfRangeIDs(t *testing.T) {
	c := New()

	for _, ids := range [][2]int{{0, 1}, {256, 1}, {1, 0}, {1, 256}, {-1, 5}} {
		if _, err := c.SiteSubnets(ids[0], ids[1]); err == nil {
			t.Errorf("SiteSubnets(%d, %d): expected error", ids[0], ids[1])
		}
	}
}

func TestZone(t *testing.T) {
	c := New()

	got, err := c.Zone(2)
	if err != nil {
		t.Fatalf("Zone: %v", err)
	}

	want := ZoneSummary{
		ZoneID:          2,
		ManagementRange: "10.2.0.0/16",
		DataRange:       "10.102.0.0/16",
		VoiceRange:      "10.152.0.0/16",
		GuestRange:      "10.202.0.0/16",
		IoTRange:        "10.222.0.0/16",
		MaxSites:        255,
	}
	if got != want {
		t.Fatalf("Zone(2) = %+v, want %+v", got, want)
	}

	if _, err := c.Zone(0); err == nil {
		t.Fatal("expected error for zone 0")
	}
	if _, err := c.Zone(256); err == nil {
		t.Fatal("expected error for zone 256")
	}
}

func TestNewWithSupernet(t *testing.T) {
	c, err := NewWithSupernet("172.16.0.0/12")
	if err != nil {
		t.Fatalf("NewWithSupernet: %v", err)
	}

	alloc, err := c.SiteSubnets(1, 1)
	if err != nil {
		t.Fatalf("SiteSubnets: %v", err)
	}
	if alloc.ManagementSubnet != "172.1.1.0/24" {
		t.Fatalf("expected first octet from supernet, got %s", alloc.ManagementSubnet)
	}

	if _, err := NewWithSupernet("not-a-cidr"); err == nil {
		t.Fatal("expected error for invalid supernet")
	}
}
