// Package pipeline runs the two-phase import: observables first, then
// indicators with relationship resolution against the observable phase.
package pipeline

// MappingTable maps source standard ids to the destination object ids
// assigned during the observable phase. It is run-scoped: written only
// while observables are dispatched, read only while indicators are, and
// discarded when the run ends. That ordering makes it safe without
// locking.
type MappingTable struct {
	entries map[string]string
}

// NewMappingTable creates an empty mapping table.
func NewMappingTable() *MappingTable {
	return &MappingTable{entries: make(map[string]string)}
}

// Record stores the destination id for a source standard id. Empty keys
// are ignored; re-recording the same id overwrites.
func (m *MappingTable) Record(standardID, destinationID string) {
	if standardID == "" {
		return
	}
	m.entries[standardID] = destinationID
}

// Lookup returns the destination id for a source standard id, if mapped.
func (m *MappingTable) Lookup(standardID string) (string, bool) {
	id, ok := m.entries[standardID]
	return id, ok
}

// Len returns the number of mapped observables.
func (m *MappingTable) Len() int {
	return len(m.entries)
}
