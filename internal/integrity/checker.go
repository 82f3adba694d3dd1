// Package integrity validates the truth graph: no orphan observations, no
// orphan entities (policy-dependent), and no cycles in hierarchical
// relationship types. The checker runs inside every write batch; a failed
// check rolls the whole batch back.
package integrity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

// OrphanPolicy decides whether zero-observation, zero-relationship
// entities fail validation. Placeholder entities are created legitimately
// by resolution before their first observation arrives, so the default is
// to report without failing.
type OrphanPolicy string

const (
	OrphanError  OrphanPolicy = "error"
	OrphanWarn   OrphanPolicy = "warn"
	OrphanIgnore OrphanPolicy = "ignore"
)

// ValidOrphanPolicy reports whether p is a known policy.
func ValidOrphanPolicy(p OrphanPolicy) bool {
	return p == OrphanError || p == OrphanWarn || p == OrphanIgnore
}

// Checker scans the graph and produces an IntegrityReport.
type Checker struct {
	OrphanEntities OrphanPolicy
	now            func() time.Time
}

// NewChecker creates a checker with the given orphan-entity policy.
func NewChecker(policy OrphanPolicy) *Checker {
	if !ValidOrphanPolicy(policy) {
		policy = OrphanWarn
	}
	return &Checker{OrphanEntities: policy, now: time.Now}
}

// Validate scans for orphan observations, orphan entities, and cycles in
// hierarchical relationship types. Pass a transaction-scoped Store to
// validate a write batch before it commits.
func (c *Checker) Validate(ctx context.Context, st *storage.Store) (models.IntegrityReport, error) {
	report := models.IntegrityReport{
		OrphanObservations: []string{},
		OrphanEntities:     []string{},
		Cycles:             [][]string{},
		CheckedAt:          c.now(),
	}

	orphanObs, err := st.OrphanObservationIDs(ctx)
	if err != nil {
		return report, err
	}
	report.OrphanObservations = append(report.OrphanObservations, orphanObs...)

	if c.OrphanEntities != OrphanIgnore {
		orphanEnts, err := st.OrphanEntityIDs(ctx)
		if err != nil {
			return report, err
		}
		report.OrphanEntities = append(report.OrphanEntities, orphanEnts...)
	}

	for _, relType := range models.HierarchicalRelationshipTypes() {
		rels, err := st.RelationshipsOfTypes(ctx, relType)
		if err != nil {
			return report, err
		}
		report.Cycles = append(report.Cycles, findCycles(rels)...)
	}

	return report, nil
}

// Enforce turns a report into an error per policy. Orphan observations and
// cycles always fail; orphan entities fail only under the error policy.
func (c *Checker) Enforce(report models.IntegrityReport) error {
	if len(report.OrphanObservations) > 0 {
		return fmt.Errorf("%d orphan observations (first: %s): %w",
			len(report.OrphanObservations), report.OrphanObservations[0], models.ErrGraphIntegrity)
	}
	if len(report.Cycles) > 0 {
		return fmt.Errorf("%d relationship cycles (first: %v): %w",
			len(report.Cycles), report.Cycles[0], models.ErrGraphIntegrity)
	}
	if c.OrphanEntities == OrphanError && len(report.OrphanEntities) > 0 {
		return fmt.Errorf("%d orphan entities (first: %s): %w",
			len(report.OrphanEntities), report.OrphanEntities[0], models.ErrGraphIntegrity)
	}
	return nil
}

// findCycles runs an iterative depth-first scan over one relationship
// type's subgraph with a visited set per traversal root, collecting each
// cycle's node path once.
func findCycles(rels []models.Relationship) [][]string {
	adjacency := map[string][]string{}
	nodes := map[string]bool{}
	for _, r := range rels {
		adjacency[r.SourceEntityID] = append(adjacency[r.SourceEntityID], r.TargetEntityID)
		nodes[r.SourceEntityID] = true
		nodes[r.TargetEntityID] = true
	}
	for _, targets := range adjacency {
		sort.Strings(targets)
	}

	roots := make([]string, 0, len(nodes))
	for n := range nodes {
		roots = append(roots, n)
	}
	sort.Strings(roots)

	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := map[string]int{}
	var cycles [][]string
	var stack []string

	var visit func(node string)
	visit = func(node string) {
		state[node] = inStack
		stack = append(stack, node)
		for _, next := range adjacency[node] {
			switch state[next] {
			case unvisited:
				visit(next)
			case inStack:
				// Slice the current path from the repeated node onward.
				for i, n := range stack {
					if n == next {
						cycle := append([]string(nil), stack[i:]...)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		state[node] = done
	}

	for _, root := range roots {
		if state[root] == unvisited {
			visit(root)
		}
	}
	return cycles
}
