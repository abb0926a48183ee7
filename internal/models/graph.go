package models

import "strings"

// Chunk is one unit of unstructured text handed to the extraction pipeline.
type Chunk struct {
	ID    string
	Index int
	Text  string
}

// Document is an ordered set of chunks extracted together.
type Document struct {
	ID     string
	Chunks []Chunk
}

// Entity is a typed node in the knowledge graph.
type Entity struct {
	ID             string
	Name           string
	Type           string
	Description    string
	Confidence     float64
	SourceChunkIDs []string
}

// CanonicalKey returns the merge key for this entity. Entities sharing a
// name but carrying different types stay distinct.
func (e Entity) CanonicalKey() string {
	return CanonicalName(e.Name) + "|" + strings.ToLower(strings.TrimSpace(e.Type))
}

// Relationship is a typed edge between two entities, referenced by name.
type Relationship struct {
	ID          string
	Source      string
	Target      string
	Type        string
	Description string
	Confidence  float64

	// Unresolved marks a relation whose source or target did not match any
	// extracted entity. Kept for a later maintenance pass, never dropped.
	Unresolved bool
}

// Key returns the merge key for this relationship.
func (r Relationship) Key() string {
	return CanonicalName(r.Source) + "|" + CanonicalName(r.Target) + "|" + strings.ToLower(strings.TrimSpace(r.Type))
}

// CanonicalName maps surface-form mentions of the same entity to one key.
func CanonicalName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// RawRecord is the shape the response parser recovers from model output.
// Entity responses fill Name; relation responses fill Source and Target.
type RawRecord struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	Source      string  `json:"source"`
	Target      string  `json:"target"`
}
