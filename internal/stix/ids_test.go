package stix

import (
	"strings"
	"testing"
)

func TestNormalizeIDKeepsValidIDs(t *testing.T) {
	id := "ipv4-addr--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001"
	if got := NormalizeID(id, "IPv4-Addr"); got != id {
		t.Errorf("valid id rewritten: %s", got)
	}
}

func TestNormalizeIDWrapsBareUUID(t *testing.T) {
	got := NormalizeID("D1B00C5A-2B9C-4FD3-8B31-8A1A5E9C0001", "Domain-Name")
	want := "domain-name--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNormalizeIDExtractsEmbeddedUUID(t *testing.T) {
	got := NormalizeID("legacy/url/d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001/v2", "Url")
	want := "url--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001"
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestNormalizeIDDerivesStableUUIDWithoutOne(t *testing.T) {
	first := NormalizeID("not-an-id-at-all", "IPv6-Addr")
	second := NormalizeID("not-an-id-at-all", "IPv6-Addr")
	if first != second {
		t.Errorf("derived ids differ: %s vs %s", first, second)
	}
	if !strings.HasPrefix(first, "ipv6-addr--") {
		t.Errorf("wrong type prefix: %s", first)
	}
	if !IsValidID(first) {
		t.Errorf("derived id is not well-formed: %s", first)
	}

	other := NormalizeID("a-different-raw-id", "IPv6-Addr")
	if other == first {
		t.Error("distinct inputs produced the same id")
	}
}

func TestNormalizeIDCustomTypes(t *testing.T) {
	cases := []struct {
		entityType string
		standardID string
		want       string
	}{
		{"Hostname", "hostname--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001", "x-netmanageit-hostname--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0001"},
		{"Software", "software--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0002", "x-netmanageit-software--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0002"},
		{"Cryptocurrency-Wallet", "cryptocurrency-wallet--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0003", "x-netmanageit-cryptocurrency-wallet--d1b00c5a-2b9c-4fd3-8b31-8a1a5e9c0003"},
	}
	for _, tc := range cases {
		if got := NormalizeID(tc.standardID, tc.entityType); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.entityType, got, tc.want)
		}
	}
}

func TestStixTypeForUnknownFallsBackToArtifact(t *testing.T) {
	if got := StixTypeFor("Totally-New-Type"); got != "artifact" {
		t.Errorf("got %s, want artifact", got)
	}
	if got := StixTypeFor("StixFile"); got != "file" {
		t.Errorf("got %s, want file", got)
	}
}

func TestRelationshipIDIsDeterministic(t *testing.T) {
	a := RelationshipID("based-on", "indicator--aaa", "ipv4-addr--bbb")
	b := RelationshipID("based-on", "indicator--aaa", "ipv4-addr--bbb")
	if a != b {
		t.Errorf("relationship ids differ: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, "relationship--") {
		t.Errorf("wrong prefix: %s", a)
	}

	reversed := RelationshipID("based-on", "ipv4-addr--bbb", "indicator--aaa")
	if reversed == a {
		t.Error("direction should change the id")
	}
}

func TestIdentityIDNormalizesName(t *testing.T) {
	a := IdentityID("OpenCTI NetManageIT", "organization")
	b := IdentityID("  opencti netmanageit ", "organization")
	if a != b {
		t.Errorf("identity ids differ for equivalent names: %s vs %s", a, b)
	}
}
