package pipeline

import (
	"github.com/rs/zerolog"

	"github.com/Ashfaaq98/opencti-sync/internal/source"
	"github.com/Ashfaaq98/opencti-sync/internal/stix"
)

// RelationshipType links an indicator to the observables it was derived
// from.
const RelationshipType = "based-on"

// RelationshipBuilder emits based-on relationships for an indicator's
// embedded observable edges. Resolution is best effort: edges whose
// standard id was never mapped during the observable phase are skipped
// silently, and zero emissions is not an error.
type RelationshipBuilder struct {
	mapping *MappingTable
	mapper  *stix.Mapper
	logger  zerolog.Logger
}

// NewRelationshipBuilder creates a builder reading from the given mapping
// table.
func NewRelationshipBuilder(mapping *MappingTable, mapper *stix.Mapper, logger zerolog.Logger) *RelationshipBuilder {
	return &RelationshipBuilder{mapping: mapping, mapper: mapper, logger: logger}
}

// Build returns one relationship per resolvable observable edge.
func (b *RelationshipBuilder) Build(indicatorID string, edges source.ObservableStubEdges) []stix.Object {
	var relationships []stix.Object

	for _, edge := range edges.Edges {
		standardID := edge.Node.StandardID
		if standardID == "" {
			continue
		}

		destinationID, ok := b.mapping.Lookup(standardID)
		if !ok {
			b.logger.Debug().
				Str("indicator_id", indicatorID).
				Str("observable_standard_id", standardID).
				Msg("Observable not mapped, skipping relationship")
			continue
		}

		relationships = append(relationships, b.mapper.Relationship(indicatorID, RelationshipType, destinationID))
	}

	return relationships
}
