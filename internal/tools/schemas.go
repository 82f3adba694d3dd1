package tools

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/schema"
)

// SchemaTools holds references needed by schema registry tool handlers.
type SchemaTools struct {
	Registry *schema.Registry
}

// --- Input types ---

type FieldDefinitionInput struct {
	Type     string   `json:"type" jsonschema:"Field type: string, number, boolean, date, array, enum, or object"`
	Required bool     `json:"required,omitempty" jsonschema:"Whether the field is required"`
	Enum     []string `json:"enum,omitempty" jsonschema:"Allowed values for enum fields"`
}

type RegisterSchemaInput struct {
	EntityType       string                          `json:"entity_type" jsonschema:"Entity type the schema applies to"`
	SchemaVersion    string                          `json:"schema_version" jsonschema:"Semver version, strictly greater than any published version"`
	FieldDefinitions map[string]FieldDefinitionInput `json:"field_definitions" jsonschema:"Field name to definition"`
	MergePolicies    map[string]string               `json:"merge_policies,omitempty" jsonschema:"Field name to merge strategy (default last_write)"`
}

type ListSchemasInput struct {
	EntityType string `json:"entity_type" jsonschema:"Entity type to list schema versions for"`
}

// --- Handlers ---

func (t *SchemaTools) RegisterSchema(ctx context.Context, _ *mcp.CallToolRequest, input RegisterSchemaInput) (*mcp.CallToolResult, any, error) {
	defs := make(map[string]models.FieldDefinition, len(input.FieldDefinitions))
	for name, d := range input.FieldDefinitions {
		defs[name] = models.FieldDefinition{
			Type:     models.FieldType(d.Type),
			Required: d.Required,
			Enum:     d.Enum,
		}
	}
	policies := make(map[string]models.MergeStrategy, len(input.MergePolicies))
	for name, p := range input.MergePolicies {
		policies[name] = models.MergeStrategy(p)
	}

	sch := models.Schema{
		EntityType:       input.EntityType,
		SchemaVersion:    input.SchemaVersion,
		FieldDefinitions: defs,
		MergePolicies:    policies,
	}
	if err := t.Registry.Register(ctx, sch); err != nil {
		return toolError("Failed to register schema: %v", err), nil, nil
	}
	return toolText(fmt.Sprintf("Registered schema %s@%s.", input.EntityType, input.SchemaVersion)), nil, nil
}

func (t *SchemaTools) ListSchemas(ctx context.Context, _ *mcp.CallToolRequest, input ListSchemasInput) (*mcp.CallToolResult, any, error) {
	schemas, err := t.Registry.List(ctx, input.EntityType)
	if err != nil {
		return toolError("Failed to list schemas: %v", err), nil, nil
	}
	if schemas == nil {
		schemas = []models.Schema{}
	}
	return toolJSON(schemas)
}
