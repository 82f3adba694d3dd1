package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/truthlayer/truth-mcp/internal/models"
)

// CreateRelationship inserts a typed directed edge. Both endpoints must
// exist. For hierarchical types (PART_OF, DEPENDS_ON) the insert is refused
// with ErrCycleDetected if the target can already reach the source through
// edges of the same type; other types are not cycle-checked.
func (s *Store) CreateRelationship(ctx context.Context, r models.Relationship) (models.Relationship, error) {
	if !models.ValidRelationshipType(r.RelationshipType) {
		return models.Relationship{}, fmt.Errorf("unknown relationship type %q", r.RelationshipType)
	}
	if _, err := s.GetEntity(ctx, r.SourceEntityID); err != nil {
		return models.Relationship{}, fmt.Errorf("source: %w", err)
	}
	if _, err := s.GetEntity(ctx, r.TargetEntityID); err != nil {
		return models.Relationship{}, fmt.Errorf("target: %w", err)
	}

	if r.RelationshipType.Hierarchical() {
		if r.SourceEntityID == r.TargetEntityID {
			return models.Relationship{}, fmt.Errorf("%s %s -> itself: %w",
				r.RelationshipType, r.SourceEntityID, models.ErrCycleDetected)
		}
		reachable, err := s.reaches(ctx, r.RelationshipType, r.TargetEntityID, r.SourceEntityID)
		if err != nil {
			return models.Relationship{}, err
		}
		if reachable {
			return models.Relationship{}, fmt.Errorf("%s %s -> %s would close a cycle: %w",
				r.RelationshipType, r.SourceEntityID, r.TargetEntityID, models.ErrCycleDetected)
		}
	}

	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	metadata := "null"
	if len(r.Metadata) > 0 {
		metadata = string(r.Metadata)
	}

	_, err := s.q.ExecContext(ctx,
		`INSERT INTO relationships
		 (id, relationship_type, source_entity_id, target_entity_id, source_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, string(r.RelationshipType), r.SourceEntityID, r.TargetEntityID,
		r.SourceID, metadata, encodeTime(r.CreatedAt),
	)
	if err != nil {
		return models.Relationship{}, fmt.Errorf("insert relationship: %w", err)
	}
	return r, nil
}

// reaches reports whether `to` is reachable from `from` following edges of
// one relationship type in source->target direction.
func (s *Store) reaches(ctx context.Context, relType models.RelationshipType, from, to string) (bool, error) {
	var found int
	err := s.q.QueryRowContext(ctx,
		`WITH RECURSIVE reach(id) AS (
		   SELECT ?
		   UNION
		   SELECT r.target_entity_id FROM relationships r
		   JOIN reach ON r.source_entity_id = reach.id
		   WHERE r.relationship_type = ?
		 )
		 SELECT COUNT(*) FROM reach WHERE id = ?`,
		from, string(relType), to,
	).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("reachability check: %w", err)
	}
	return found > 0, nil
}

// ListRelationships returns relationships touching an entity. Direction is
// "out" (entity is source), "in" (entity is target), or "both".
func (s *Store) ListRelationships(ctx context.Context, entityID, direction string) ([]models.Relationship, error) {
	var where string
	var args []any
	switch direction {
	case "out":
		where = `source_entity_id = ?`
		args = []any{entityID}
	case "in":
		where = `target_entity_id = ?`
		args = []any{entityID}
	case "", "both":
		where = `(source_entity_id = ? OR target_entity_id = ?)`
		args = []any{entityID, entityID}
	default:
		return nil, fmt.Errorf("unknown direction %q (use out, in, or both)", direction)
	}

	rows, err := s.q.QueryContext(ctx, relSelect+` WHERE `+where+` ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

// RelationshipsOfTypes returns every relationship of the given types,
// ordered deterministically. Used by the integrity checker's cycle scan.
func (s *Store) RelationshipsOfTypes(ctx context.Context, types ...models.RelationshipType) ([]models.Relationship, error) {
	if len(types) == 0 {
		return nil, nil
	}
	placeholders := ""
	args := make([]any, len(types))
	for i, t := range types {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "?"
		args[i] = string(t)
	}

	rows, err := s.q.QueryContext(ctx,
		relSelect+` WHERE relationship_type IN (`+placeholders+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query relationships by type: %w", err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

// ListAllRelationships returns every relationship in the graph.
func (s *Store) ListAllRelationships(ctx context.Context) ([]models.Relationship, error) {
	rows, err := s.q.QueryContext(ctx, relSelect+` ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query relationships: %w", err)
	}
	defer rows.Close()
	return collectRelationships(rows)
}

const relSelect = `SELECT id, relationship_type, source_entity_id, target_entity_id, source_id, metadata, created_at
  FROM relationships`

func collectRelationships(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]models.Relationship, error) {
	var rels []models.Relationship
	for rows.Next() {
		var r models.Relationship
		var relType, metadata, createdAt string
		if err := rows.Scan(&r.ID, &relType, &r.SourceEntityID, &r.TargetEntityID, &r.SourceID, &metadata, &createdAt); err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		r.RelationshipType = models.RelationshipType(relType)
		if metadata != "" && metadata != "null" {
			r.Metadata = json.RawMessage(metadata)
		}
		t, err := decodeTime(createdAt)
		if err != nil {
			return nil, err
		}
		r.CreatedAt = t
		rels = append(rels, r)
	}
	return rels, rows.Err()
}
