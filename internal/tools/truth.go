package tools

import (
	"context"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/reducer"
	"github.com/truthlayer/truth-mcp/internal/resolver"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

// TruthTools holds references needed by entity/observation/snapshot tool
// handlers.
type TruthTools struct {
	Store  *storage.Store
	Engine *reducer.Engine
}

// --- Input types ---

type ResolveEntityInput struct {
	EntityType string `json:"entity_type" jsonschema:"Entity type (e.g., company, person, invoice)"`
	Name       string `json:"name" jsonschema:"Raw entity name to canonicalize"`
	Namespace  string `json:"namespace,omitempty" jsonschema:"Namespace for id derivation (defaults to 'default')"`
}

type IngestObservationInput struct {
	EntityType       string         `json:"entity_type" jsonschema:"Entity type the observation describes"`
	EntityID         string         `json:"entity_id,omitempty" jsonschema:"Pre-resolved entity id (alternative to entity_name)"`
	EntityName       string         `json:"entity_name,omitempty" jsonschema:"Raw entity name; resolved to an id if entity_id is absent"`
	Namespace        string         `json:"namespace,omitempty" jsonschema:"Namespace used when resolving entity_name"`
	SourceID         string         `json:"source_id" jsonschema:"Identifier of the originating document or payload"`
	ObservedAt       string         `json:"observed_at" jsonschema:"RFC3339 timestamp used for merge ordering"`
	SpecificityScore float64        `json:"specificity_score,omitempty" jsonschema:"0-1 specificity used by the most_specific strategy"`
	SourcePriority   int            `json:"source_priority,omitempty" jsonschema:"Source priority used for tie-breaks and highest_priority"`
	Fields           map[string]any `json:"fields" jsonschema:"Observed field values (non-empty)"`
}

type GetEntitySnapshotInput struct {
	EntityID string `json:"entity_id" jsonschema:"Entity id"`
}

type ListObservationsInput struct {
	EntityID string `json:"entity_id" jsonschema:"Entity id"`
}

type GetFieldProvenanceInput struct {
	EntityID  string `json:"entity_id" jsonschema:"Entity id"`
	FieldName string `json:"field_name" jsonschema:"Snapshot field name"`
}

// --- Handlers ---

func (t *TruthTools) ResolveEntity(ctx context.Context, _ *mcp.CallToolRequest, input ResolveEntityInput) (*mcp.CallToolResult, any, error) {
	entity, err := resolver.Resolve(ctx, t.Store, input.EntityType, input.Name, input.Namespace)
	if err != nil {
		return toolError("Failed to resolve entity: %v", err), nil, nil
	}
	return toolJSON(entity)
}

func (t *TruthTools) IngestObservation(ctx context.Context, _ *mcp.CallToolRequest, input IngestObservationInput) (*mcp.CallToolResult, any, error) {
	observedAt, err := time.Parse(time.RFC3339, input.ObservedAt)
	if err != nil {
		return toolError("Invalid observed_at (want RFC3339): %v", err), nil, nil
	}
	if input.EntityID == "" && input.EntityName == "" {
		return toolError("Either entity_id or entity_name is required"), nil, nil
	}

	result, err := t.Engine.Ingest(ctx, reducer.IngestRequest{
		EntityType:       input.EntityType,
		EntityID:         input.EntityID,
		EntityName:       input.EntityName,
		Namespace:        input.Namespace,
		SourceID:         input.SourceID,
		ObservedAt:       observedAt,
		SpecificityScore: input.SpecificityScore,
		SourcePriority:   input.SourcePriority,
		Fields:           input.Fields,
	})
	if err != nil {
		return toolError("Failed to ingest observation: %v", err), nil, nil
	}
	return toolJSON(result)
}

func (t *TruthTools) GetEntitySnapshot(ctx context.Context, _ *mcp.CallToolRequest, input GetEntitySnapshotInput) (*mcp.CallToolResult, any, error) {
	snap, err := t.Store.GetSnapshot(ctx, input.EntityID)
	if err != nil {
		return toolError("Failed to get snapshot: %v", err), nil, nil
	}
	return toolJSON(snap)
}

func (t *TruthTools) ListObservations(ctx context.Context, _ *mcp.CallToolRequest, input ListObservationsInput) (*mcp.CallToolResult, any, error) {
	obs, err := t.Store.ListObservations(ctx, input.EntityID)
	if err != nil {
		return toolError("Failed to list observations: %v", err), nil, nil
	}
	if obs == nil {
		obs = []models.Observation{}
	}
	return toolJSON(obs)
}

// FieldProvenance pairs a snapshot field's value with the observation(s)
// that produced it.
type FieldProvenance struct {
	EntityID   string            `json:"entity_id"`
	FieldName  string            `json:"field_name"`
	Value      any               `json:"value"`
	Provenance models.Provenance `json:"provenance"`
}

func (t *TruthTools) GetFieldProvenance(ctx context.Context, _ *mcp.CallToolRequest, input GetFieldProvenanceInput) (*mcp.CallToolResult, any, error) {
	snap, err := t.Store.GetSnapshot(ctx, input.EntityID)
	if err != nil {
		return toolError("Failed to get snapshot: %v", err), nil, nil
	}
	prov, ok := snap.Provenance[input.FieldName]
	if !ok {
		return toolError("Field %q is not present in the snapshot for %s", input.FieldName, input.EntityID), nil, nil
	}
	return toolJSON(FieldProvenance{
		EntityID:   input.EntityID,
		FieldName:  input.FieldName,
		Value:      snap.Fields[input.FieldName],
		Provenance: prov,
	})
}
