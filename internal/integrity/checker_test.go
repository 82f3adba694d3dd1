package integrity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func addEntity(t *testing.T, st *storage.Store, id string) {
	t.Helper()
	_, err := st.UpsertEntity(context.Background(), models.Entity{
		ID: id, EntityType: "company", CanonicalName: id, Namespace: "default",
	})
	require.NoError(t, err)
}

func addObservation(t *testing.T, st *storage.Store, id, entityID string) {
	t.Helper()
	_, err := st.AppendObservation(context.Background(), models.Observation{
		ID: id, EntityID: entityID, EntityType: "company",
		SourceID: "s", ObservedAt: time.Now(),
		Fields: map[string]any{"x": 1},
	})
	require.NoError(t, err)
}

func TestValidate_CleanGraph(t *testing.T) {
	st := newTestStore(t)
	addEntity(t, st, "ent_a")
	addObservation(t, st, "obs_1", "ent_a")

	c := NewChecker(OrphanWarn)
	report, err := c.Validate(context.Background(), st)
	require.NoError(t, err)

	assert.Empty(t, report.OrphanObservations)
	assert.Empty(t, report.OrphanEntities)
	assert.Empty(t, report.Cycles)
	assert.NoError(t, c.Enforce(report))
}

func TestValidate_OrphanObservationAlwaysFails(t *testing.T) {
	st := newTestStore(t)
	addObservation(t, st, "obs_stray", "ent_gone")

	c := NewChecker(OrphanIgnore)
	report, err := c.Validate(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, []string{"obs_stray"}, report.OrphanObservations)
	assert.ErrorIs(t, c.Enforce(report), models.ErrGraphIntegrity)
}

func TestValidate_OrphanEntityPolicies(t *testing.T) {
	st := newTestStore(t)
	addEntity(t, st, "ent_lonely")
	ctx := context.Background()

	// warn: reported but not fatal
	c := NewChecker(OrphanWarn)
	report, err := c.Validate(ctx, st)
	require.NoError(t, err)
	assert.Equal(t, []string{"ent_lonely"}, report.OrphanEntities)
	assert.NoError(t, c.Enforce(report))

	// error: reported and fatal
	c = NewChecker(OrphanError)
	report, err = c.Validate(ctx, st)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Enforce(report), models.ErrGraphIntegrity)

	// ignore: not even reported
	c = NewChecker(OrphanIgnore)
	report, err = c.Validate(ctx, st)
	require.NoError(t, err)
	assert.Empty(t, report.OrphanEntities)
	assert.NoError(t, c.Enforce(report))
}

func TestNewChecker_InvalidPolicyDefaultsToWarn(t *testing.T) {
	c := NewChecker("whatever")
	assert.Equal(t, OrphanWarn, c.OrphanEntities)
}

func TestValidate_CycleScan(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"ent_a", "ent_b", "ent_c"} {
		addEntity(t, st, id)
		addObservation(t, st, "obs_"+id, id)
	}

	// The insert-time guard refuses cycles, so plant one directly to prove
	// the scanner finds pre-existing damage.
	for _, edge := range [][2]string{{"ent_a", "ent_b"}, {"ent_b", "ent_c"}} {
		_, err := st.CreateRelationship(ctx, models.Relationship{
			RelationshipType: models.RelPartOf,
			SourceEntityID:   edge[0],
			TargetEntityID:   edge[1],
		})
		require.NoError(t, err)
	}
	rels, err := st.RelationshipsOfTypes(ctx, models.RelPartOf)
	require.NoError(t, err)
	rels = append(rels, models.Relationship{
		ID:               "rel_back",
		RelationshipType: models.RelPartOf,
		SourceEntityID:   "ent_c",
		TargetEntityID:   "ent_a",
	})

	cycles := findCycles(rels)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"ent_a", "ent_b", "ent_c"}, cycles[0])

	// A report carrying a cycle is always fatal
	c := NewChecker(OrphanWarn)
	report := models.IntegrityReport{Cycles: cycles}
	assert.ErrorIs(t, c.Enforce(report), models.ErrGraphIntegrity)
}

func TestFindCycles_DisjointSubgraphs(t *testing.T) {
	rels := []models.Relationship{
		// Acyclic chain
		{RelationshipType: models.RelPartOf, SourceEntityID: "a", TargetEntityID: "b"},
		{RelationshipType: models.RelPartOf, SourceEntityID: "b", TargetEntityID: "c"},
		// Two-node cycle elsewhere
		{RelationshipType: models.RelPartOf, SourceEntityID: "x", TargetEntityID: "y"},
		{RelationshipType: models.RelPartOf, SourceEntityID: "y", TargetEntityID: "x"},
	}

	cycles := findCycles(rels)
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []string{"x", "y"}, cycles[0])
}

func TestFindCycles_Deterministic(t *testing.T) {
	rels := []models.Relationship{
		{SourceEntityID: "m", TargetEntityID: "n"},
		{SourceEntityID: "n", TargetEntityID: "m"},
		{SourceEntityID: "p", TargetEntityID: "q"},
		{SourceEntityID: "q", TargetEntityID: "p"},
	}

	first := findCycles(rels)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, findCycles(rels))
	}
}
