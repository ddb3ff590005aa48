package source

import "time"

// Label is an OpenCTI objectLabel entry.
type Label struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Color string `json:"color"`
}

// Marking is an OpenCTI objectMarking entry. The observables query only
// selects definition; the indicators query also selects definition_type
// and order.
type Marking struct {
	ID             string `json:"id"`
	DefinitionType string `json:"definition_type"`
	Definition     string `json:"definition"`
	Order          int    `json:"x_opencti_order"`
	Color          string `json:"x_opencti_color"`
}

// ExternalReference is an external reference node.
type ExternalReference struct {
	ID          string `json:"id"`
	SourceName  string `json:"source_name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// ExternalReferenceEdges mirrors the edges/node wrapper OpenCTI uses for
// external references.
type ExternalReferenceEdges struct {
	Edges []ExternalReferenceEdge `json:"edges"`
}

type ExternalReferenceEdge struct {
	Node ExternalReference `json:"node"`
}

// Creator identifies a platform user that created the entity.
type Creator struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Identity is the createdBy author reference on a source entity.
type Identity struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	EntityType string `json:"entity_type"`
}

// KillChainPhase is a kill chain phase attached to an indicator.
type KillChainPhase struct {
	ID            string `json:"id"`
	KillChainName string `json:"kill_chain_name"`
	PhaseName     string `json:"phase_name"`
	Order         int    `json:"x_opencti_order"`
}

// ObservableStub is the embedded observable reference on an indicator's
// observables edges. Only identity fields are selected; the full record
// is fetched during the observable phase.
type ObservableStub struct {
	ID              string `json:"id"`
	StandardID      string `json:"standard_id"`
	EntityType      string `json:"entity_type"`
	ObservableValue string `json:"observable_value"`
}

// ObservableStubEdges wraps the indicator's embedded observable edges.
type ObservableStubEdges struct {
	Edges []ObservableStubEdge `json:"edges"`
}

type ObservableStubEdge struct {
	Node ObservableStub `json:"node"`
}

// RawObservable is a stix cyber observable record as returned by the
// source GraphQL API. Type-specific fields (value, number, pid, ...) are
// flattened into the node by the inline fragments of the query.
type RawObservable struct {
	ID              string     `json:"id"`
	StandardID      string     `json:"standard_id"`
	EntityType      string     `json:"entity_type"`
	ObservableValue string     `json:"observable_value"`
	SpecVersion     string     `json:"spec_version"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`

	Score       *int     `json:"x_opencti_score"`
	Description string   `json:"x_opencti_description"`
	StixIDs     []string `json:"x_opencti_stix_ids"`

	CreatedBy          *Identity              `json:"createdBy"`
	ObjectMarking      []Marking              `json:"objectMarking"`
	ObjectLabel        []Label                `json:"objectLabel"`
	Creators           []Creator              `json:"creators"`
	ExternalReferences ExternalReferenceEdges `json:"externalReferences"`

	// IPv4-Addr, IPv6-Addr, Domain-Name, Url, Email-Addr, Mac-Addr
	Value string `json:"value"`
	// Email-Addr, User-Account
	DisplayName string `json:"display_name"`
	// Autonomous-System
	Number int64  `json:"number"`
	RIR    string `json:"rir"`
	// Process
	PID         *int64 `json:"pid"`
	CommandLine string `json:"command_line"`
	// User-Account
	AccountLogin string `json:"account_login"`
	// StixFile, Software
	Name string `json:"name"`
}

// RawIndicator is an indicator record as returned by the source GraphQL
// API, including the embedded observable edges used for relationship
// resolution.
type RawIndicator struct {
	ID          string     `json:"id"`
	StandardID  string     `json:"standard_id"`
	EntityType  string     `json:"entity_type"`
	SpecVersion string     `json:"spec_version"`
	Name        string     `json:"name"`
	Pattern     string     `json:"pattern"`
	PatternType string     `json:"pattern_type"`
	Description string     `json:"description"`
	Confidence  int        `json:"confidence"`
	Revoked     bool       `json:"revoked"`
	ValidFrom   *time.Time `json:"valid_from"`
	ValidUntil  *time.Time `json:"valid_until"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`

	Score              *int     `json:"x_opencti_score"`
	Detection          bool     `json:"x_opencti_detection"`
	MainObservableType string   `json:"x_opencti_main_observable_type"`
	MitrePlatforms     []string `json:"x_mitre_platforms"`
	IndicatorTypes     []string `json:"indicator_types"`
	StixIDs            []string `json:"x_opencti_stix_ids"`

	CreatedBy          *Identity              `json:"createdBy"`
	ObjectMarking      []Marking              `json:"objectMarking"`
	ObjectLabel        []Label                `json:"objectLabel"`
	Creators           []Creator              `json:"creators"`
	ExternalReferences ExternalReferenceEdges `json:"externalReferences"`
	KillChainPhases    []KillChainPhase       `json:"killChainPhases"`

	Observables ObservableStubEdges `json:"observables"`
}

// PageInfo is the cursor-pagination envelope returned with every page.
type PageInfo struct {
	EndCursor   string `json:"endCursor"`
	HasNextPage bool   `json:"hasNextPage"`
	GlobalCount int    `json:"globalCount"`
}

// ObservablePage is one page of observables plus its pagination state.
type ObservablePage struct {
	Records     []RawObservable
	EndCursor   string
	HasNextPage bool
	GlobalCount int
}

// IndicatorPage is one page of indicators plus its pagination state.
type IndicatorPage struct {
	Records     []RawIndicator
	EndCursor   string
	HasNextPage bool
	GlobalCount int
}
