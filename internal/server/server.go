package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/truthlayer/truth-mcp/internal/integrity"
	"github.com/truthlayer/truth-mcp/internal/reducer"
	"github.com/truthlayer/truth-mcp/internal/schema"
	"github.com/truthlayer/truth-mcp/internal/storage"
	"github.com/truthlayer/truth-mcp/internal/tools"
)

// Deps are the core components the tool handlers wrap. Handlers hold no
// logic of their own; each tool is a thin adapter over one core contract.
type Deps struct {
	Store    *storage.Store
	Registry *schema.Registry
	Engine   *reducer.Engine
	Checker  *integrity.Checker
}

// New creates a fully configured MCP server with all tools registered.
func New(deps Deps) *mcp.Server {
	tt := &tools.TruthTools{Store: deps.Store, Engine: deps.Engine}
	gt := &tools.GraphTools{Store: deps.Store, Checker: deps.Checker}
	st := &tools.SchemaTools{Registry: deps.Registry}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "truth-mcp",
		Version: "0.1.0",
	}, nil)

	// Entity / observation / snapshot tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "resolve_entity",
		Description: "Canonicalize a raw name into a stable entity id (idempotent; creates the entity on first resolution)",
	}, tt.ResolveEntity)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "ingest_observation",
		Description: "Append an immutable observation and recompute the entity's snapshot transactionally",
	}, tt.IngestObservation)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_entity_snapshot",
		Description: "Get the current merged snapshot (with field-level provenance) for an entity",
	}, tt.GetEntitySnapshot)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_observations",
		Description: "List all observations for an entity in deterministic order",
	}, tt.ListObservations)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "get_field_provenance",
		Description: "Get the observation(s) that produced one snapshot field's value",
	}, tt.GetFieldProvenance)

	// Relationship / graph tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "create_relationship",
		Description: "Create a typed directed relationship between entities (hierarchical types are cycle-checked)",
	}, gt.CreateRelationship)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_relationships",
		Description: "List relationships touching an entity, filtered by direction (out, in, both)",
	}, gt.ListRelationships)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "read_graph",
		Description: "Read the full truth graph: every entity with its current snapshot, plus all relationships",
	}, gt.ReadGraph)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "validate_graph",
		Description: "Run the graph integrity checker and return the report (orphans, cycles)",
	}, gt.ValidateGraph)

	// Schema registry tools
	mcp.AddTool(srv, &mcp.Tool{
		Name:        "register_schema",
		Description: "Publish a new schema version for an entity type (monotonic semver, immutable once published)",
	}, st.RegisterSchema)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "list_schemas",
		Description: "List all published schema versions for an entity type",
	}, st.ListSchemas)

	return srv
}
