package tools

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/truthlayer/truth-mcp/internal/integrity"
	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

// GraphTools holds references needed by relationship and integrity tool
// handlers.
type GraphTools struct {
	Store   *storage.Store
	Checker *integrity.Checker
}

// --- Input types ---

type CreateRelationshipInput struct {
	RelationshipType string         `json:"relationship_type" jsonschema:"PART_OF CORRECTS REFERS_TO SETTLES DUPLICATE_OF DEPENDS_ON or SUPERSEDES"`
	SourceEntityID   string         `json:"source_entity_id" jsonschema:"Source entity id"`
	TargetEntityID   string         `json:"target_entity_id" jsonschema:"Target entity id"`
	SourceID         string         `json:"source_id,omitempty" jsonschema:"Provenance: originating document or payload id"`
	Metadata         map[string]any `json:"metadata,omitempty" jsonschema:"Opaque caller-defined metadata"`
}

type ListRelationshipsInput struct {
	EntityID  string `json:"entity_id" jsonschema:"Entity id"`
	Direction string `json:"direction,omitempty" jsonschema:"out, in, or both (default both)"`
}

// --- Handlers ---

func (t *GraphTools) CreateRelationship(ctx context.Context, _ *mcp.CallToolRequest, input CreateRelationshipInput) (*mcp.CallToolResult, any, error) {
	var metadata json.RawMessage
	if input.Metadata != nil {
		data, err := json.Marshal(input.Metadata)
		if err != nil {
			return toolError("Failed to encode metadata: %v", err), nil, nil
		}
		metadata = data
	}

	var created models.Relationship
	err := t.Store.Tx(ctx, func(tx *storage.Store) error {
		var err error
		created, err = tx.CreateRelationship(ctx, models.Relationship{
			RelationshipType: models.RelationshipType(input.RelationshipType),
			SourceEntityID:   input.SourceEntityID,
			TargetEntityID:   input.TargetEntityID,
			SourceID:         input.SourceID,
			Metadata:         metadata,
		})
		if err != nil {
			return err
		}
		report, err := t.Checker.Validate(ctx, tx)
		if err != nil {
			return err
		}
		return t.Checker.Enforce(report)
	})
	if errors.Is(err, models.ErrCycleDetected) {
		return toolError("Cycle detected: %v", err), nil, nil
	}
	if err != nil {
		return toolError("Failed to create relationship: %v", err), nil, nil
	}
	return toolJSON(created)
}

func (t *GraphTools) ListRelationships(ctx context.Context, _ *mcp.CallToolRequest, input ListRelationshipsInput) (*mcp.CallToolResult, any, error) {
	rels, err := t.Store.ListRelationships(ctx, input.EntityID, input.Direction)
	if err != nil {
		return toolError("Failed to list relationships: %v", err), nil, nil
	}
	if rels == nil {
		rels = []models.Relationship{}
	}
	return toolJSON(rels)
}

func (t *GraphTools) ReadGraph(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	entities, err := t.Store.ListEntities(ctx)
	if err != nil {
		return toolError("Failed to read graph: %v", err), nil, nil
	}

	graph := models.TruthGraph{Entities: []models.GraphEntity{}}
	for _, e := range entities {
		ge := models.GraphEntity{Entity: e}
		snap, err := t.Store.GetSnapshot(ctx, e.ID)
		if err == nil {
			ge.Snapshot = &snap
		} else if !errors.Is(err, models.ErrSnapshotNotFound) {
			return toolError("Failed to read graph: %v", err), nil, nil
		}
		graph.Entities = append(graph.Entities, ge)
	}

	rels, err := t.Store.ListAllRelationships(ctx)
	if err != nil {
		return toolError("Failed to read graph: %v", err), nil, nil
	}
	if rels == nil {
		rels = []models.Relationship{}
	}
	graph.Relationships = rels

	return toolJSON(graph)
}

func (t *GraphTools) ValidateGraph(ctx context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	report, err := t.Checker.Validate(ctx, t.Store)
	if err != nil {
		return toolError("Failed to validate graph: %v", err), nil, nil
	}
	return toolJSON(report)
}
