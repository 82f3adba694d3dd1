package main

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/truthlayer/truth-mcp/internal/integrity"
	"github.com/truthlayer/truth-mcp/internal/logger"
	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/reducer"
	"github.com/truthlayer/truth-mcp/internal/schema"
	"github.com/truthlayer/truth-mcp/internal/server"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

// setupIntegration creates a real MCP server with in-memory transport and returns a connected client session.
func setupIntegration(t *testing.T) *mcp.ClientSession {
	t.Helper()

	store, err := storage.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	registry := schema.NewRegistry(store)
	checker := integrity.NewChecker(integrity.OrphanWarn)
	engine := reducer.New(store, registry, checker, logger.Nop(), reducer.Options{})

	srv := server.New(server.Deps{
		Store:    store,
		Registry: registry,
		Engine:   engine,
		Checker:  checker,
	})

	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	if _, err := srv.Connect(ctx, serverTransport, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return session
}

// callTool is a helper that calls a tool and returns the text content.
func callTool(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(result.Content) == 0 {
		t.Fatalf("CallTool(%s): empty content", name)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	if result.IsError {
		t.Fatalf("CallTool(%s) returned error: %s", name, tc.Text)
	}
	return tc.Text
}

// callToolExpectError calls a tool and expects an error response (IsError=true).
func callToolExpectError(t *testing.T, session *mcp.ClientSession, name string, args map[string]any) string {
	t.Helper()
	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): protocol error: %v", name, err)
	}
	if !result.IsError {
		tc := result.Content[0].(*mcp.TextContent)
		t.Fatalf("CallTool(%s): expected error but got success: %s", name, tc.Text)
	}
	tc := result.Content[0].(*mcp.TextContent)
	return tc.Text
}

func registerCompanySchema(t *testing.T, session *mcp.ClientSession, version string) {
	t.Helper()
	callTool(t, session, "register_schema", map[string]any{
		"entity_type":    "company",
		"schema_version": version,
		"field_definitions": map[string]any{
			"industry":       map[string]any{"type": "string"},
			"employee_count": map[string]any{"type": "number"},
			"tags":           map[string]any{"type": "array"},
		},
		"merge_policies": map[string]any{
			"industry":       "last_write",
			"employee_count": "highest_priority",
			"tags":           "merge_array",
		},
	})
}

func TestIntegration_ListTools(t *testing.T) {
	session := setupIntegration(t)

	result, err := session.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}

	expectedTools := []string{
		"resolve_entity", "ingest_observation", "get_entity_snapshot",
		"list_observations", "get_field_provenance",
		"create_relationship", "list_relationships", "read_graph", "validate_graph",
		"register_schema", "list_schemas",
	}

	toolNames := make(map[string]bool)
	for _, tool := range result.Tools {
		toolNames[tool.Name] = true
	}

	for _, name := range expectedTools {
		if !toolNames[name] {
			t.Errorf("Missing tool: %s", name)
		}
	}

	if len(result.Tools) != len(expectedTools) {
		t.Errorf("Expected %d tools, got %d", len(expectedTools), len(result.Tools))
	}
}

func TestIntegration_FullWorkflow(t *testing.T) {
	session := setupIntegration(t)

	// Step 1: register a schema for the company type
	registerCompanySchema(t, session, "1.0.0")

	text := callTool(t, session, "list_schemas", map[string]any{"entity_type": "company"})
	var schemas []models.Schema
	if err := json.Unmarshal([]byte(text), &schemas); err != nil {
		t.Fatalf("parse list_schemas: %v", err)
	}
	if len(schemas) != 1 || schemas[0].SchemaVersion != "1.0.0" {
		t.Fatalf("expected one schema at 1.0.0, got %+v", schemas)
	}

	// Step 2: resolve_entity canonicalizes spelling variants to one id
	text = callTool(t, session, "resolve_entity", map[string]any{
		"entity_type": "company",
		"name":        "Acme Corp",
	})
	var acme models.Entity
	if err := json.Unmarshal([]byte(text), &acme); err != nil {
		t.Fatalf("parse resolve_entity: %v", err)
	}
	if !strings.HasPrefix(acme.ID, "ent_") {
		t.Errorf("entity id = %q, want ent_ prefix", acme.ID)
	}

	text = callTool(t, session, "resolve_entity", map[string]any{
		"entity_type": "company",
		"name":        "ACME CORP.",
	})
	var acme2 models.Entity
	json.Unmarshal([]byte(text), &acme2)
	if acme2.ID != acme.ID {
		t.Errorf("spelling variant resolved to %q, want %q", acme2.ID, acme.ID)
	}

	// Step 3: ingest two conflicting observations; last_write decides industry
	text = callTool(t, session, "ingest_observation", map[string]any{
		"entity_type": "company",
		"entity_id":   acme.ID,
		"source_id":   "crm-export-1",
		"observed_at": "2026-01-10T09:00:00Z",
		"fields": map[string]any{
			"industry":       "logistics",
			"employee_count": 120,
			"tags":           []any{"vendor"},
		},
	})
	var ingest reducer.IngestResult
	if err := json.Unmarshal([]byte(text), &ingest); err != nil {
		t.Fatalf("parse ingest_observation: %v", err)
	}
	if !ingest.Inserted {
		t.Error("first observation should be inserted")
	}
	firstObsID := ingest.Observation.ID

	text = callTool(t, session, "ingest_observation", map[string]any{
		"entity_type":     "company",
		"entity_id":       acme.ID,
		"source_id":       "crm-export-2",
		"observed_at":     "2026-02-01T09:00:00Z",
		"source_priority": 5,
		"fields": map[string]any{
			"industry": "shipping",
			"tags":     []any{"vendor", "priority"},
		},
	})
	if err := json.Unmarshal([]byte(text), &ingest); err != nil {
		t.Fatalf("parse ingest_observation: %v", err)
	}
	snap := ingest.Snapshot
	if snap.Fields["industry"] != "shipping" {
		t.Errorf("industry = %v, want shipping (later observed_at wins)", snap.Fields["industry"])
	}
	if snap.Fields["employee_count"] != float64(120) {
		t.Errorf("employee_count = %v, want 120", snap.Fields["employee_count"])
	}
	if snap.ObservationCount != 2 {
		t.Errorf("observation_count = %d, want 2", snap.ObservationCount)
	}
	tags, _ := snap.Fields["tags"].([]any)
	if len(tags) != 2 {
		t.Errorf("tags = %v, want union of 2 values", snap.Fields["tags"])
	}

	// Re-delivery of an identical payload dedups by content hash
	text = callTool(t, session, "ingest_observation", map[string]any{
		"entity_type": "company",
		"entity_id":   acme.ID,
		"source_id":   "crm-export-1",
		"observed_at": "2026-01-10T09:00:00Z",
		"fields": map[string]any{
			"industry":       "logistics",
			"employee_count": 120,
			"tags":           []any{"vendor"},
		},
	})
	json.Unmarshal([]byte(text), &ingest)
	if ingest.Inserted {
		t.Error("duplicate observation should not be inserted")
	}
	if ingest.Snapshot.ObservationCount != 2 {
		t.Errorf("observation_count after duplicate = %d, want 2", ingest.Snapshot.ObservationCount)
	}

	// Step 4: provenance points at the winning observation
	text = callTool(t, session, "get_field_provenance", map[string]any{
		"entity_id":  acme.ID,
		"field_name": "employee_count",
	})
	var prov struct {
		Value      any               `json:"value"`
		Provenance models.Provenance `json:"provenance"`
	}
	if err := json.Unmarshal([]byte(text), &prov); err != nil {
		t.Fatalf("parse get_field_provenance: %v", err)
	}
	if prov.Provenance.ObservationID != firstObsID {
		t.Errorf("employee_count provenance = %q, want %q", prov.Provenance.ObservationID, firstObsID)
	}

	// Step 5: list_observations returns deterministic order
	text = callTool(t, session, "list_observations", map[string]any{"entity_id": acme.ID})
	var obs []models.Observation
	if err := json.Unmarshal([]byte(text), &obs); err != nil {
		t.Fatalf("parse list_observations: %v", err)
	}
	if len(obs) != 2 {
		t.Fatalf("expected 2 observations, got %d", len(obs))
	}
	if !obs[0].ObservedAt.Before(obs[1].ObservedAt) {
		t.Error("observations should be ordered by observed_at")
	}

	// Step 6: relationships, including cycle rejection for PART_OF
	text = callTool(t, session, "resolve_entity", map[string]any{
		"entity_type": "company",
		"name":        "Acme Holdings",
	})
	var holdings models.Entity
	json.Unmarshal([]byte(text), &holdings)

	callTool(t, session, "create_relationship", map[string]any{
		"relationship_type": "PART_OF",
		"source_entity_id":  acme.ID,
		"target_entity_id":  holdings.ID,
	})

	errText := callToolExpectError(t, session, "create_relationship", map[string]any{
		"relationship_type": "PART_OF",
		"source_entity_id":  holdings.ID,
		"target_entity_id":  acme.ID,
	})
	if !strings.Contains(errText, "Cycle detected") {
		t.Errorf("expected 'Cycle detected', got %q", errText)
	}

	// REFERS_TO is not hierarchical, so the reverse edge is fine
	callTool(t, session, "create_relationship", map[string]any{
		"relationship_type": "REFERS_TO",
		"source_entity_id":  holdings.ID,
		"target_entity_id":  acme.ID,
	})

	// Step 7: read_graph returns every entity with its snapshot
	text = callTool(t, session, "read_graph", nil)
	var graph models.TruthGraph
	if err := json.Unmarshal([]byte(text), &graph); err != nil {
		t.Fatalf("parse read_graph: %v", err)
	}
	if len(graph.Entities) != 2 {
		t.Errorf("graph should have 2 entities, got %d", len(graph.Entities))
	}
	if len(graph.Relationships) != 2 {
		t.Errorf("graph should have 2 relationships, got %d", len(graph.Relationships))
	}
	for _, ge := range graph.Entities {
		if ge.Entity.ID == acme.ID && ge.Snapshot == nil {
			t.Error("acme should carry a snapshot in read_graph")
		}
	}

	// Step 8: validate_graph reports a clean graph (holdings has no
	// observations yet, but its relationships keep it out of the orphan set)
	text = callTool(t, session, "validate_graph", nil)
	var report models.IntegrityReport
	if err := json.Unmarshal([]byte(text), &report); err != nil {
		t.Fatalf("parse validate_graph: %v", err)
	}
	if len(report.OrphanObservations) != 0 {
		t.Errorf("expected no orphan observations, got %v", report.OrphanObservations)
	}
	if len(report.Cycles) != 0 {
		t.Errorf("expected no cycles, got %v", report.Cycles)
	}
	if len(report.OrphanEntities) != 0 {
		t.Errorf("expected no orphan entities, got %v", report.OrphanEntities)
	}
}

func TestIntegration_SchemaEvolution(t *testing.T) {
	session := setupIntegration(t)
	registerCompanySchema(t, session, "1.0.0")

	text := callTool(t, session, "resolve_entity", map[string]any{
		"entity_type": "company",
		"name":        "Globex",
	})
	var globex models.Entity
	json.Unmarshal([]byte(text), &globex)

	callTool(t, session, "ingest_observation", map[string]any{
		"entity_type": "company",
		"entity_id":   globex.ID,
		"source_id":   "feed-1",
		"observed_at": "2026-03-01T00:00:00Z",
		"fields": map[string]any{
			"industry":       "energy",
			"employee_count": 40,
		},
	})

	// Publishing an older or equal version is rejected
	errText := callToolExpectError(t, session, "register_schema", map[string]any{
		"entity_type":       "company",
		"schema_version":    "1.0.0",
		"field_definitions": map[string]any{"industry": map[string]any{"type": "string"}},
	})
	if !strings.Contains(errText, "version") {
		t.Errorf("expected version rejection, got %q", errText)
	}

	// A newer version that drops employee_count takes effect on the next
	// ingest; the dropped field stays in the snapshot under last_write
	callTool(t, session, "register_schema", map[string]any{
		"entity_type":    "company",
		"schema_version": "1.1.0",
		"field_definitions": map[string]any{
			"industry": map[string]any{"type": "string"},
		},
	})

	text = callTool(t, session, "ingest_observation", map[string]any{
		"entity_type": "company",
		"entity_id":   globex.ID,
		"source_id":   "feed-2",
		"observed_at": "2026-03-02T00:00:00Z",
		"fields":      map[string]any{"industry": "renewables"},
	})
	var ingest reducer.IngestResult
	if err := json.Unmarshal([]byte(text), &ingest); err != nil {
		t.Fatalf("parse ingest_observation: %v", err)
	}
	if ingest.Snapshot.SchemaVersion != "1.1.0" {
		t.Errorf("snapshot schema_version = %q, want 1.1.0", ingest.Snapshot.SchemaVersion)
	}
	if ingest.Snapshot.Fields["industry"] != "renewables" {
		t.Errorf("industry = %v, want renewables", ingest.Snapshot.Fields["industry"])
	}
	if ingest.Snapshot.Fields["employee_count"] != float64(40) {
		t.Errorf("dropped field employee_count = %v, want 40", ingest.Snapshot.Fields["employee_count"])
	}
}

func TestIntegration_ErrorCases(t *testing.T) {
	session := setupIntegration(t)

	// Error: ingest before any schema is published
	errText := callToolExpectError(t, session, "ingest_observation", map[string]any{
		"entity_type": "company",
		"entity_name": "NoSchema Inc",
		"source_id":   "feed",
		"observed_at": "2026-01-01T00:00:00Z",
		"fields":      map[string]any{"industry": "retail"},
	})
	if !strings.Contains(errText, "schema") {
		t.Errorf("expected schema error, got %q", errText)
	}

	registerCompanySchema(t, session, "1.0.0")

	// Error: malformed observed_at
	errText = callToolExpectError(t, session, "ingest_observation", map[string]any{
		"entity_type": "company",
		"entity_name": "Acme",
		"source_id":   "feed",
		"observed_at": "yesterday",
		"fields":      map[string]any{"industry": "retail"},
	})
	if !strings.Contains(errText, "observed_at") {
		t.Errorf("expected observed_at error, got %q", errText)
	}

	// Error: neither entity_id nor entity_name
	errText = callToolExpectError(t, session, "ingest_observation", map[string]any{
		"entity_type": "company",
		"source_id":   "feed",
		"observed_at": "2026-01-01T00:00:00Z",
		"fields":      map[string]any{"industry": "retail"},
	})
	if !strings.Contains(errText, "entity_id or entity_name") {
		t.Errorf("expected entity identification error, got %q", errText)
	}

	// Error: snapshot for an entity that has none
	errText = callToolExpectError(t, session, "get_entity_snapshot", map[string]any{
		"entity_id": "ent_0000000000000000000000000000dead",
	})
	if !strings.Contains(errText, "Failed to get snapshot") {
		t.Errorf("expected snapshot error, got %q", errText)
	}

	// Error: relationship referencing a missing entity
	text := callTool(t, session, "resolve_entity", map[string]any{
		"entity_type": "company",
		"name":        "Real Co",
	})
	var real models.Entity
	json.Unmarshal([]byte(text), &real)

	errText = callToolExpectError(t, session, "create_relationship", map[string]any{
		"relationship_type": "PART_OF",
		"source_entity_id":  real.ID,
		"target_entity_id":  "ent_0000000000000000000000000000dead",
	})
	if !strings.Contains(errText, "Failed to create relationship") {
		t.Errorf("expected relationship error, got %q", errText)
	}

	// Error: unknown relationship type
	errText = callToolExpectError(t, session, "create_relationship", map[string]any{
		"relationship_type": "FRIENDS_WITH",
		"source_entity_id":  real.ID,
		"target_entity_id":  real.ID,
	})
	if !strings.Contains(errText, "Failed to create relationship") {
		t.Errorf("expected relationship type error, got %q", errText)
	}

	// Re-resolving under the same type and namespace is idempotent
	text = callTool(t, session, "resolve_entity", map[string]any{
		"entity_type": "company",
		"name":        "Real Co",
	})
	var again models.Entity
	json.Unmarshal([]byte(text), &again)
	if again.ID != real.ID {
		t.Errorf("re-resolution returned %q, want %q", again.ID, real.ID)
	}
}
