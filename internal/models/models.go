package models

import (
	"encoding/json"
	"time"
)

// Entity is a canonical real-world referent. Its id and entity_type are
// fixed at creation; the only permitted mutation is appending aliases.
type Entity struct {
	ID            string    `json:"id"`
	EntityType    string    `json:"entity_type"`
	CanonicalName string    `json:"canonical_name"`
	Namespace     string    `json:"namespace"`
	Aliases       []string  `json:"aliases,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Observation is a single source-attributed fact set about one entity.
// Observations are immutable: corrections arrive as new observations with a
// later observed_at or higher source_priority, never as edits.
type Observation struct {
	ID               string         `json:"id"`
	EntityID         string         `json:"entity_id"`
	EntityType       string         `json:"entity_type"`
	SchemaVersion    string         `json:"schema_version"`
	SourceID         string         `json:"source_id"`
	ObservedAt       time.Time      `json:"observed_at"`
	SpecificityScore float64        `json:"specificity_score"`
	SourcePriority   int            `json:"source_priority"`
	Fields           map[string]any `json:"fields"`
	CreatedAt        time.Time      `json:"created_at"`
}

// FieldType tags the declared type of a schema field.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldArray   FieldType = "array"
	FieldEnum    FieldType = "enum"
	FieldObject  FieldType = "object"
)

// ValidFieldType reports whether t is a known declared type.
func ValidFieldType(t FieldType) bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldDate, FieldArray, FieldEnum, FieldObject:
		return true
	}
	return false
}

// FieldDefinition declares one field of an entity-type schema.
type FieldDefinition struct {
	Type     FieldType `json:"type" yaml:"type"`
	Required bool      `json:"required,omitempty" yaml:"required,omitempty"`
	Enum     []string  `json:"enum,omitempty" yaml:"enum,omitempty"`
}

// MergeStrategy names the deterministic rule used to pick a winning value
// among competing observations for one field.
type MergeStrategy string

const (
	MergeLastWrite       MergeStrategy = "last_write"
	MergeHighestPriority MergeStrategy = "highest_priority"
	MergeMostSpecific    MergeStrategy = "most_specific"
	MergeArray           MergeStrategy = "merge_array"
)

// ValidMergeStrategy reports whether s is a known strategy.
func ValidMergeStrategy(s MergeStrategy) bool {
	switch s {
	case MergeLastWrite, MergeHighestPriority, MergeMostSpecific, MergeArray:
		return true
	}
	return false
}

// Schema is one published, immutable version of an entity type's field
// declarations and merge policies.
type Schema struct {
	EntityType       string                     `json:"entity_type" yaml:"entity_type"`
	SchemaVersion    string                     `json:"schema_version" yaml:"schema_version"`
	FieldDefinitions map[string]FieldDefinition `json:"field_definitions" yaml:"field_definitions"`
	MergePolicies    map[string]MergeStrategy   `json:"merge_policies,omitempty" yaml:"merge_policies,omitempty"`
	PublishedAt      time.Time                  `json:"published_at" yaml:"-"`
}

// Policy returns the merge strategy for a field, defaulting to last_write
// for fields the schema does not declare a policy for (including fields
// dropped from the schema entirely).
func (s Schema) Policy(field string) MergeStrategy {
	if p, ok := s.MergePolicies[field]; ok {
		return p
	}
	return MergeLastWrite
}

// Provenance records which observation(s) produced a snapshot field.
// Exactly one of ObservationID (scalar strategies) or ObservationIDs
// (merge_array) is set. Warning carries the lenient-mode annotation when a
// winning value could not be converted to the declared type.
type Provenance struct {
	ObservationID  string   `json:"observation_id,omitempty"`
	ObservationIDs []string `json:"observation_ids,omitempty"`
	Warning        string   `json:"warning,omitempty"`
}

// Snapshot is the single materialized current truth for one entity.
type Snapshot struct {
	EntityID          string                `json:"entity_id"`
	EntityType        string                `json:"entity_type"`
	SchemaVersion     string                `json:"schema_version"`
	Fields            map[string]any        `json:"snapshot"`
	Provenance        map[string]Provenance `json:"provenance"`
	ObservationCount  int                   `json:"observation_count"`
	LastObservationAt time.Time             `json:"last_observation_at"`
	ComputedAt        time.Time             `json:"computed_at"`
}

// RelationshipType enumerates the typed edges between entities.
type RelationshipType string

const (
	RelPartOf      RelationshipType = "PART_OF"
	RelCorrects    RelationshipType = "CORRECTS"
	RelRefersTo    RelationshipType = "REFERS_TO"
	RelSettles     RelationshipType = "SETTLES"
	RelDuplicateOf RelationshipType = "DUPLICATE_OF"
	RelDependsOn   RelationshipType = "DEPENDS_ON"
	RelSupersedes  RelationshipType = "SUPERSEDES"
)

// ValidRelationshipType reports whether t is one of the enumerated types.
func ValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelPartOf, RelCorrects, RelRefersTo, RelSettles, RelDuplicateOf, RelDependsOn, RelSupersedes:
		return true
	}
	return false
}

// Hierarchical reports whether edges of this type must stay acyclic.
func (t RelationshipType) Hierarchical() bool {
	return t == RelPartOf || t == RelDependsOn
}

// HierarchicalRelationshipTypes lists the cycle-checked types.
func HierarchicalRelationshipTypes() []RelationshipType {
	return []RelationshipType{RelPartOf, RelDependsOn}
}

// Relationship is a typed, directed edge between two entities. Metadata is
// caller-defined provenance payload and is never interpreted by the core.
type Relationship struct {
	ID               string           `json:"id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	SourceEntityID   string           `json:"source_entity_id"`
	TargetEntityID   string           `json:"target_entity_id"`
	SourceID         string           `json:"source_id,omitempty"`
	Metadata         json.RawMessage  `json:"metadata,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
}

// IntegrityReport is the result of a graph integrity scan.
type IntegrityReport struct {
	OrphanObservations []string   `json:"orphan_observations"`
	OrphanEntities     []string   `json:"orphan_entities"`
	Cycles             [][]string `json:"cycles"`
	CheckedAt          time.Time  `json:"checked_at"`
}

// TruthGraph is the full dump returned by read_graph: every entity with its
// current snapshot (if computed), plus all relationships.
type TruthGraph struct {
	Entities      []GraphEntity  `json:"entities"`
	Relationships []Relationship `json:"relationships"`
}

// GraphEntity pairs an entity with its current snapshot.
type GraphEntity struct {
	Entity   Entity    `json:"entity"`
	Snapshot *Snapshot `json:"snapshot,omitempty"`
}
