package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/truthlayer/truth-mcp/internal/models"
)

// UpsertEntity inserts the entity if absent. If an entity with the same id
// already exists, its entity_type and canonical_name must match exactly
// (entities never rename or retype); any alias on e not yet recorded is
// appended. Returns the stored entity either way.
func (s *Store) UpsertEntity(ctx context.Context, e models.Entity) (models.Entity, error) {
	existing, err := s.GetEntity(ctx, e.ID)
	if errors.Is(err, models.ErrEntityNotFound) {
		aliases, err := json.Marshal(nonNil(e.Aliases))
		if err != nil {
			return models.Entity{}, fmt.Errorf("marshal aliases: %w", err)
		}
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		_, err = s.q.ExecContext(ctx,
			`INSERT INTO entities (id, entity_type, canonical_name, namespace, aliases, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			e.ID, e.EntityType, e.CanonicalName, e.Namespace, string(aliases), encodeTime(e.CreatedAt),
		)
		if err != nil {
			return models.Entity{}, fmt.Errorf("insert entity %q: %w", e.ID, err)
		}
		return s.GetEntity(ctx, e.ID)
	}
	if err != nil {
		return models.Entity{}, err
	}

	if existing.EntityType != e.EntityType {
		return models.Entity{}, fmt.Errorf("entity %q is %q, cannot retype to %q: %w",
			e.ID, existing.EntityType, e.EntityType, models.ErrEntityImmutability)
	}
	if existing.CanonicalName != e.CanonicalName {
		return models.Entity{}, fmt.Errorf("entity %q is named %q, cannot rename to %q: %w",
			e.ID, existing.CanonicalName, e.CanonicalName, models.ErrEntityImmutability)
	}

	added := false
	for _, a := range e.Aliases {
		if a != "" && !containsString(existing.Aliases, a) {
			existing.Aliases = append(existing.Aliases, a)
			added = true
		}
	}
	if added {
		aliases, err := json.Marshal(existing.Aliases)
		if err != nil {
			return models.Entity{}, fmt.Errorf("marshal aliases: %w", err)
		}
		_, err = s.q.ExecContext(ctx,
			`UPDATE entities SET aliases = ? WHERE id = ?`, string(aliases), existing.ID,
		)
		if err != nil {
			return models.Entity{}, fmt.Errorf("append aliases for %q: %w", existing.ID, err)
		}
	}
	return existing, nil
}

// GetEntity returns the entity with the given id.
func (s *Store) GetEntity(ctx context.Context, id string) (models.Entity, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, entity_type, canonical_name, namespace, aliases, created_at
		 FROM entities WHERE id = ?`, id,
	)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Entity{}, fmt.Errorf("entity %q: %w", id, models.ErrEntityNotFound)
	}
	return e, err
}

// ListEntities returns all entities ordered by canonical name.
func (s *Store) ListEntities(ctx context.Context) ([]models.Entity, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, entity_type, canonical_name, namespace, aliases, created_at
		 FROM entities ORDER BY canonical_name, id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var entities []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// OrphanEntityIDs returns entities with zero observations and zero
// relationships in either direction. Whether these are violations or
// legitimate placeholders is the integrity checker's policy call.
func (s *Store) OrphanEntityIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT e.id FROM entities e
		 WHERE NOT EXISTS (SELECT 1 FROM observations o WHERE o.entity_id = e.id)
		   AND NOT EXISTS (SELECT 1 FROM relationships r
		                   WHERE r.source_entity_id = e.id OR r.target_entity_id = e.id)
		 ORDER BY e.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query orphan entities: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphan entity: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (models.Entity, error) {
	var e models.Entity
	var aliases, createdAt string
	if err := row.Scan(&e.ID, &e.EntityType, &e.CanonicalName, &e.Namespace, &aliases, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Entity{}, err
		}
		return models.Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	if err := json.Unmarshal([]byte(aliases), &e.Aliases); err != nil {
		return models.Entity{}, fmt.Errorf("decode aliases: %w", err)
	}
	t, err := decodeTime(createdAt)
	if err != nil {
		return models.Entity{}, err
	}
	e.CreatedAt = t
	return e, nil
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
