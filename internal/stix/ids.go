package stix

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// openCTINamespace is the UUIDv5 namespace OpenCTI derives its
// deterministic standard ids in. Using the same namespace keeps ids
// stable across this connector and the platforms on both sides.
var openCTINamespace = uuid.MustParse("00abedb4-aa42-466c-9c01-fed23315a9b7")

var (
	uuidPattern   = regexp.MustCompile(`(?i)[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`)
	uuidOnly      = regexp.MustCompile(`(?i)^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	stixIDPattern = regexp.MustCompile(`(?i)^[a-z0-9-]+--[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

// entityTypeToStixType maps source entity types to STIX object types.
// Hostname, Software and Cryptocurrency-Wallet have no STIX 2.1 observable
// type and are carried as custom x-netmanageit-* types.
var entityTypeToStixType = map[string]string{
	"IPv4-Addr":             "ipv4-addr",
	"IPv6-Addr":             "ipv6-addr",
	"Domain-Name":           "domain-name",
	"Url":                   "url",
	"Email-Addr":            "email-addr",
	"Mac-Addr":              "mac-addr",
	"Autonomous-System":     "autonomous-system",
	"Process":               "process",
	"User-Account":          "user-account",
	"StixFile":              "file",
	"Hostname":              "x-netmanageit-hostname",
	"Software":              "x-netmanageit-software",
	"Cryptocurrency-Wallet": "x-netmanageit-cryptocurrency-wallet",
	"Artifact":              "artifact",
	"Indicator":             "indicator",
}

// StixTypeFor returns the STIX object type for a source entity type, or
// "artifact" for unrecognized types.
func StixTypeFor(entityType string) string {
	if t, ok := entityTypeToStixType[entityType]; ok {
		return t
	}
	return "artifact"
}

// IsValidID reports whether id is a well-formed STIX identifier.
func IsValidID(id string) bool {
	return stixIDPattern.MatchString(id)
}

// NormalizeID coerces a source standard_id into a valid STIX identifier
// for the given entity type. The result is deterministic: the UUID part
// is reused when present, otherwise derived from the standard_id itself,
// so repeated runs always produce the same id for the same entity.
func NormalizeID(standardID, entityType string) string {
	stixType := StixTypeFor(entityType)

	// Custom observable types keep their UUID under the custom prefix.
	switch {
	case entityType == "Hostname" && strings.HasPrefix(standardID, "hostname--"):
		return "x-netmanageit-hostname--" + strings.TrimPrefix(standardID, "hostname--")
	case entityType == "Software" && strings.HasPrefix(standardID, "software--"):
		return "x-netmanageit-software--" + strings.TrimPrefix(standardID, "software--")
	case entityType == "Cryptocurrency-Wallet" && strings.HasPrefix(standardID, "cryptocurrency-wallet--"):
		return "x-netmanageit-cryptocurrency-wallet--" + strings.TrimPrefix(standardID, "cryptocurrency-wallet--")
	}

	if IsValidID(standardID) {
		return standardID
	}

	if uuidOnly.MatchString(standardID) {
		return stixType + "--" + strings.ToLower(standardID)
	}

	if match := uuidPattern.FindString(standardID); match != "" {
		return stixType + "--" + strings.ToLower(match)
	}

	// No UUID anywhere in the id: derive one from the raw value so the
	// mapping stays stable across runs.
	return stixType + "--" + uuid.NewSHA1(openCTINamespace, []byte(standardID)).String()
}

// RelationshipID derives the deterministic identifier for a relationship,
// matching the platform's own generation scheme.
func RelationshipID(relationshipType, sourceRef, targetRef string) string {
	seed := strings.Join([]string{relationshipType, sourceRef, targetRef}, "--")
	return "relationship--" + uuid.NewSHA1(openCTINamespace, []byte(seed)).String()
}

// IdentityID derives the deterministic identifier for an identity.
func IdentityID(name, identityClass string) string {
	seed := identityClass + "--" + strings.ToLower(strings.TrimSpace(name))
	return "identity--" + uuid.NewSHA1(openCTINamespace, []byte(seed)).String()
}
