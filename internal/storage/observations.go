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

// AppendObservation inserts an immutable observation. Observation ids are
// deterministic over content, so re-appending an identical payload is a
// no-op (INSERT OR IGNORE); the bool reports whether a row was written.
// There is no update or delete path for observations.
func (s *Store) AppendObservation(ctx context.Context, o models.Observation) (bool, error) {
	fields, err := json.Marshal(o.Fields)
	if err != nil {
		return false, fmt.Errorf("marshal fields: %w", err)
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}

	result, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO observations
		 (id, entity_id, entity_type, schema_version, source_id, observed_at,
		  specificity_score, source_priority, fields, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.ID, o.EntityID, o.EntityType, o.SchemaVersion, o.SourceID,
		encodeTime(o.ObservedAt), o.SpecificityScore, o.SourcePriority,
		string(fields), encodeTime(o.CreatedAt),
	)
	if err != nil {
		return false, fmt.Errorf("insert observation %q: %w", o.ID, err)
	}
	n, _ := result.RowsAffected()
	return n > 0, nil
}

// GetObservation returns a single observation by id.
func (s *Store) GetObservation(ctx context.Context, id string) (models.Observation, error) {
	row := s.q.QueryRowContext(ctx, obsSelect+` WHERE id = ?`, id)
	o, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Observation{}, fmt.Errorf("observation %q: %w", id, models.ErrObservationNotFound)
	}
	return o, err
}

// ListObservations returns all observations for an entity in a fixed total
// order: observed_at, then source_priority, then id. Insertion order never
// influences the result.
func (s *Store) ListObservations(ctx context.Context, entityID string) ([]models.Observation, error) {
	rows, err := s.q.QueryContext(ctx,
		obsSelect+` WHERE entity_id = ? ORDER BY observed_at, source_priority, id`,
		entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var obs []models.Observation
	for rows.Next() {
		o, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		obs = append(obs, o)
	}
	return obs, rows.Err()
}

// OrphanObservationIDs returns observations whose entity does not exist.
func (s *Store) OrphanObservationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT o.id FROM observations o
		 LEFT JOIN entities e ON e.id = o.entity_id
		 WHERE e.id IS NULL ORDER BY o.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query orphan observations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan orphan observation: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

const obsSelect = `SELECT id, entity_id, entity_type, schema_version, source_id, observed_at,
       specificity_score, source_priority, fields, created_at
  FROM observations`

func scanObservation(row rowScanner) (models.Observation, error) {
	var o models.Observation
	var observedAt, fields, createdAt string
	err := row.Scan(&o.ID, &o.EntityID, &o.EntityType, &o.SchemaVersion, &o.SourceID,
		&observedAt, &o.SpecificityScore, &o.SourcePriority, &fields, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Observation{}, err
		}
		return models.Observation{}, fmt.Errorf("scan observation: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &o.Fields); err != nil {
		return models.Observation{}, fmt.Errorf("decode fields: %w", err)
	}
	if o.ObservedAt, err = decodeTime(observedAt); err != nil {
		return models.Observation{}, err
	}
	if o.CreatedAt, err = decodeTime(createdAt); err != nil {
		return models.Observation{}, err
	}
	return o, nil
}
