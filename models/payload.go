// Package models defines the data structures shared by the pipeline,
// the store and the knowledge-graph backend.
package models

// EntityType classifies an extracted entity. The seven values below are
// the only ones the enrichment prompt allows; anything else coming back
// from the remote service is normalized to EntityConcept.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityTechnology   EntityType = "technology"
	EntityConcept      EntityType = "concept"
	EntityPlace        EntityType = "place"
	EntityEvent        EntityType = "event"
	EntityProduct      EntityType = "product"
)

// NormalizeEntityType maps an arbitrary type string onto one of the
// allowed values, defaulting to EntityConcept.
func NormalizeEntityType(s string) EntityType {
	switch EntityType(s) {
	case EntityPerson, EntityOrganization, EntityTechnology,
		EntityConcept, EntityPlace, EntityEvent, EntityProduct:
		return EntityType(s)
	}
	return EntityConcept
}

// Entity is a named entity extracted from page content.
type Entity struct {
	Name string     `json:"name"`
	Type EntityType `json:"type"`
}

// TabPayload is the unit of persisted and forwarded state, keyed by
// tab id in the store. Field names follow the backend wire format.
type TabPayload struct {
	Title    string   `json:"title"`
	URL      string   `json:"url"`
	Summary  string   `json:"summary"`
	RawText  string   `json:"raw_text"`
	Entities []Entity `json:"entities"`
	Language string   `json:"language,omitempty"`
	// Timestamp is the processing time in unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// PageInfo is the extractor's answer to an extraction request.
type PageInfo struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	URL     string `json:"url"`
}
