// Package stix converts source platform records into STIX 2.1 objects.
package stix

import (
	"time"

	"github.com/google/uuid"
)

// Canonical TLP marking-definition identifiers from the STIX 2.1
// specification. TLP:CLEAR is folded into TLP:WHITE.
const (
	TLPWhite = "marking-definition--613f2e26-407d-48c7-9eca-b8e91df99dc9"
	TLPGreen = "marking-definition--34098fce-860f-48ae-8e50-ebd3cc5e41da"
	TLPAmber = "marking-definition--f88d31f6-486f-44da-b317-01333bde0b82"
	TLPRed   = "marking-definition--5e57c739-391a-4eb3-b6be-7d15ca92d5ed"
)

// SpecVersion is stamped on every emitted object.
const SpecVersion = "2.1"

// ExternalReference is a STIX external-reference entry.
type ExternalReference struct {
	SourceName  string `json:"source_name"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// KillChainPhase is a STIX kill-chain-phase entry.
type KillChainPhase struct {
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
}

// Creator is the platform user carried through as x_opencti_creators.
type Creator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Object is a flat STIX 2.1 object covering the variants this connector
// emits: cyber observables, indicators, relationships and the author
// identity. Unset fields are omitted from the wire form.
type Object struct {
	Type        string `json:"type"`
	ID          string `json:"id"`
	SpecVersion string `json:"spec_version,omitempty"`

	// Observable value fields, populated per entity type.
	Value        string `json:"value,omitempty"`
	Name         string `json:"name,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	Number       int64  `json:"number,omitempty"`
	RIR          string `json:"rir,omitempty"`
	PID          *int64 `json:"pid,omitempty"`
	CommandLine  string `json:"command_line,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	AccountLogin string `json:"account_login,omitempty"`
	PayloadBin   string `json:"payload_bin,omitempty"`

	// Indicator fields.
	Pattern         string           `json:"pattern,omitempty"`
	PatternType     string           `json:"pattern_type,omitempty"`
	Description     string           `json:"description,omitempty"`
	Confidence      int              `json:"confidence,omitempty"`
	ValidFrom       *time.Time       `json:"valid_from,omitempty"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
	IndicatorTypes  []string         `json:"indicator_types,omitempty"`
	KillChainPhases []KillChainPhase `json:"kill_chain_phases,omitempty"`

	// Relationship fields.
	RelationshipType string `json:"relationship_type,omitempty"`
	SourceRef        string `json:"source_ref,omitempty"`
	TargetRef        string `json:"target_ref,omitempty"`

	// Identity fields.
	IdentityClass string `json:"identity_class,omitempty"`

	// Common metadata.
	CreatedByRef       string              `json:"created_by_ref,omitempty"`
	Labels             []string            `json:"labels,omitempty"`
	ObjectMarkingRefs  []string            `json:"object_marking_refs,omitempty"`
	ExternalReferences []ExternalReference `json:"external_references,omitempty"`

	// OpenCTI extension properties.
	Score              *int                `json:"x_opencti_score,omitempty"`
	XDescription       string              `json:"x_opencti_description,omitempty"`
	XCreatedByRef      string              `json:"x_opencti_created_by_ref,omitempty"`
	XLabels            []string            `json:"x_opencti_labels,omitempty"`
	XExternalRefs      []ExternalReference `json:"x_opencti_external_references,omitempty"`
	XStixIDs           []string            `json:"x_opencti_stix_ids,omitempty"`
	XCreators          []Creator           `json:"x_opencti_creators,omitempty"`
	MainObservableType string              `json:"x_opencti_main_observable_type,omitempty"`
	Detection          bool                `json:"x_opencti_detection,omitempty"`
	MitrePlatforms     []string            `json:"x_mitre_platforms,omitempty"`
}

// Bundle is a STIX 2.1 bundle submitted to the destination platform.
type Bundle struct {
	Type    string   `json:"type"`
	ID      string   `json:"id"`
	Objects []Object `json:"objects"`
}

// NewBundle wraps objects in a bundle with a random bundle id. Bundle ids
// are transport-level only; object ids stay deterministic.
func NewBundle(objects []Object) Bundle {
	return Bundle{
		Type:    "bundle",
		ID:      "bundle--" + uuid.NewString(),
		Objects: objects,
	}
}
