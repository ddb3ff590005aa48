package stix

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ashfaaq98/opencti-sync/internal/source"
)

// AuthorName identifies the origin of every imported object.
const AuthorName = "OpenCTI NetManageIT"

// Mapper converts raw source records into STIX 2.1 objects. Conversion is
// pure: the same record always yields the same object, ids included.
type Mapper struct {
	author Object
	logger zerolog.Logger
}

// NewMapper creates a mapper with its author identity.
func NewMapper(logger zerolog.Logger) *Mapper {
	return &Mapper{
		author: Object{
			Type:          "identity",
			ID:            IdentityID(AuthorName, "organization"),
			SpecVersion:   SpecVersion,
			Name:          AuthorName,
			IdentityClass: "organization",
			Description:   "Data imported from OpenCTI NetManageIT instance.",
		},
		logger: logger,
	}
}

// Author returns the identity object referenced by every emitted entity.
// It is included in the first bundle of each run.
func (m *Mapper) Author() Object {
	return m.author
}

// Observable converts a raw observable into a STIX cyber observable.
// Records without a value or standard id are skipped (nil, no error).
// Unrecognized entity types become a generic artifact so future source
// types do not halt the run.
func (m *Mapper) Observable(raw source.RawObservable) *Object {
	if raw.ObservableValue == "" || raw.StandardID == "" {
		return nil
	}

	obj := Object{
		Type:          StixTypeFor(raw.EntityType),
		ID:            NormalizeID(raw.StandardID, raw.EntityType),
		SpecVersion:   SpecVersion,
		Score:         raw.Score,
		XDescription:  raw.Description,
		XCreatedByRef: m.author.ID,
		XLabels:       labelValues(raw.ObjectLabel),
		XExternalRefs: externalRefs(raw.ExternalReferences),
		XStixIDs:      raw.StixIDs,
		XCreators:     creators(raw.Creators),

		ObjectMarkingRefs: markingRefs(raw.ObjectMarking, m.logger),
	}

	switch raw.EntityType {
	case "IPv4-Addr", "IPv6-Addr", "Domain-Name", "Url", "Mac-Addr", "Hostname", "Cryptocurrency-Wallet":
		obj.Value = raw.ObservableValue
	case "Email-Addr":
		obj.Value = raw.ObservableValue
		obj.DisplayName = raw.DisplayName
	case "Autonomous-System":
		obj.Number = raw.Number
		obj.Name = raw.ObservableValue
		obj.RIR = raw.RIR
	case "Process":
		obj.PID = raw.PID
		obj.CommandLine = raw.CommandLine
	case "User-Account":
		obj.UserID = raw.AccountLogin
		if obj.UserID == "" {
			obj.UserID = raw.ObservableValue
		}
		obj.AccountLogin = raw.AccountLogin
		obj.DisplayName = raw.DisplayName
	case "StixFile", "Software":
		obj.Name = raw.Name
		if obj.Name == "" {
			obj.Name = raw.ObservableValue
		}
	default:
		m.logger.Warn().
			Str("entity_type", raw.EntityType).
			Str("standard_id", raw.StandardID).
			Msg("Unknown entity type, mapping to artifact")
		obj.PayloadBin = base64.StdEncoding.EncodeToString([]byte(raw.ObservableValue))
	}

	return &obj
}

// Indicator converts a raw indicator into a STIX indicator. Records
// without a standard id or pattern are skipped (nil, no error).
func (m *Mapper) Indicator(raw source.RawIndicator) *Object {
	if raw.StandardID == "" || raw.Pattern == "" {
		return nil
	}

	patternType := raw.PatternType
	if patternType == "" {
		patternType = "stix"
	}

	validFrom, validUntil := validityWindow(raw.ValidFrom, raw.ValidUntil)

	return &Object{
		Type:            "indicator",
		ID:              NormalizeID(raw.StandardID, "Indicator"),
		SpecVersion:     SpecVersion,
		Name:            raw.Name,
		Pattern:         raw.Pattern,
		PatternType:     patternType,
		Description:     raw.Description,
		Confidence:      raw.Confidence,
		ValidFrom:       validFrom,
		ValidUntil:      validUntil,
		IndicatorTypes:  raw.IndicatorTypes,
		KillChainPhases: killChainPhases(raw.KillChainPhases),
		CreatedByRef:    m.author.ID,
		Labels:          labelValues(raw.ObjectLabel),

		ObjectMarkingRefs:  markingRefs(raw.ObjectMarking, m.logger),
		ExternalReferences: externalRefs(raw.ExternalReferences),

		Score:              raw.Score,
		Detection:          raw.Detection,
		MainObservableType: raw.MainObservableType,
		MitrePlatforms:     raw.MitrePlatforms,
		XCreatedByRef:      m.author.ID,
		XStixIDs:           raw.StixIDs,
		XCreators:          creators(raw.Creators),
	}
}

// Relationship builds a relationship object with a deterministic id.
func (m *Mapper) Relationship(sourceRef, relationshipType, targetRef string) Object {
	return Object{
		Type:             "relationship",
		ID:               RelationshipID(relationshipType, sourceRef, targetRef),
		SpecVersion:      SpecVersion,
		RelationshipType: relationshipType,
		SourceRef:        sourceRef,
		TargetRef:        targetRef,
		CreatedByRef:     m.author.ID,
	}
}

// validityWindow forces valid_until past valid_from; the destination
// rejects indicators whose window is empty or inverted.
func validityWindow(from, until *time.Time) (*time.Time, *time.Time) {
	if from == nil || until == nil {
		return from, until
	}
	if until.After(*from) {
		return from, until
	}
	adjusted := from.Add(24 * time.Hour)
	return from, &adjusted
}

func labelValues(labels []source.Label) []string {
	if len(labels) == 0 {
		return nil
	}
	values := make([]string, 0, len(labels))
	for _, l := range labels {
		if l.Value != "" {
			values = append(values, l.Value)
		}
	}
	return values
}

func externalRefs(edges source.ExternalReferenceEdges) []ExternalReference {
	var refs []ExternalReference
	for _, edge := range edges.Edges {
		if edge.Node.URL == "" {
			continue
		}
		name := edge.Node.SourceName
		if name == "" {
			name = "External Source"
		}
		refs = append(refs, ExternalReference{
			SourceName:  name,
			URL:         edge.Node.URL,
			Description: edge.Node.Description,
		})
	}
	return refs
}

func creators(in []source.Creator) []Creator {
	if len(in) == 0 {
		return nil
	}
	out := make([]Creator, 0, len(in))
	for _, c := range in {
		out = append(out, Creator{ID: c.ID, Name: c.Name})
	}
	return out
}

func killChainPhases(in []source.KillChainPhase) []KillChainPhase {
	if len(in) == 0 {
		return nil
	}
	out := make([]KillChainPhase, 0, len(in))
	for _, p := range in {
		name := p.KillChainName
		if name == "" {
			name = "lockheed-martin-cyber-kill-chain"
		}
		out = append(out, KillChainPhase{KillChainName: name, PhaseName: p.PhaseName})
	}
	return out
}

// markingRefs maps source marking definitions onto the canonical TLP
// marking ids. Unrecognized markings default to TLP:AMBER, and entities
// with no markings at all are stamped TLP:AMBER as well.
func markingRefs(markings []source.Marking, logger zerolog.Logger) []string {
	refs := make([]string, 0, len(markings))
	for _, marking := range markings {
		refs = append(refs, tlpRef(marking, logger))
	}
	if len(refs) == 0 {
		refs = append(refs, TLPAmber)
	}
	return refs
}

func tlpRef(marking source.Marking, logger zerolog.Logger) string {
	definition := strings.ToLower(marking.Definition)
	switch {
	case strings.Contains(definition, "red"):
		return TLPRed
	case strings.Contains(definition, "amber"):
		return TLPAmber
	case strings.Contains(definition, "green"):
		return TLPGreen
	case strings.Contains(definition, "white"), strings.Contains(definition, "clear"):
		// TLP:CLEAR is the 2.0 name for TLP:WHITE.
		return TLPWhite
	default:
		logger.Warn().
			Str("definition", marking.Definition).
			Msg("Unknown marking definition, defaulting to TLP:AMBER")
		return TLPAmber
	}
}
