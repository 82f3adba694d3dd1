package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/truthlayer/truth-mcp/internal/models"
)

// ReplaceSnapshot atomically replaces the current snapshot for an entity
// and appends the new version to the audit log. Snapshots are only ever
// written whole; there is no partial-patch path.
func (s *Store) ReplaceSnapshot(ctx context.Context, snap models.Snapshot) error {
	fields, err := json.Marshal(snap.Fields)
	if err != nil {
		return fmt.Errorf("marshal snapshot fields: %w", err)
	}
	prov, err := json.Marshal(snap.Provenance)
	if err != nil {
		return fmt.Errorf("marshal provenance: %w", err)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT OR REPLACE INTO entity_snapshots
		 (entity_id, entity_type, schema_version, snapshot, provenance,
		  observation_count, last_observation_at, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.EntityID, snap.EntityType, snap.SchemaVersion, string(fields), string(prov),
		snap.ObservationCount, encodeTime(snap.LastObservationAt), encodeTime(snap.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("replace snapshot for %q: %w", snap.EntityID, err)
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO snapshot_history
		 (entity_id, schema_version, snapshot, provenance, observation_count, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		snap.EntityID, snap.SchemaVersion, string(fields), string(prov),
		snap.ObservationCount, encodeTime(snap.ComputedAt),
	)
	if err != nil {
		return fmt.Errorf("append snapshot history for %q: %w", snap.EntityID, err)
	}
	return nil
}

// GetSnapshot returns the current snapshot for an entity.
func (s *Store) GetSnapshot(ctx context.Context, entityID string) (models.Snapshot, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT entity_id, entity_type, schema_version, snapshot, provenance,
		        observation_count, last_observation_at, computed_at
		 FROM entity_snapshots WHERE entity_id = ?`, entityID,
	)

	var snap models.Snapshot
	var fields, prov, lastObs, computed string
	err := row.Scan(&snap.EntityID, &snap.EntityType, &snap.SchemaVersion, &fields, &prov,
		&snap.ObservationCount, &lastObs, &computed)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Snapshot{}, fmt.Errorf("entity %q: %w", entityID, models.ErrSnapshotNotFound)
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("scan snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(fields), &snap.Fields); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode snapshot fields: %w", err)
	}
	if err := json.Unmarshal([]byte(prov), &snap.Provenance); err != nil {
		return models.Snapshot{}, fmt.Errorf("decode provenance: %w", err)
	}
	if snap.LastObservationAt, err = decodeTime(lastObs); err != nil {
		return models.Snapshot{}, err
	}
	if snap.ComputedAt, err = decodeTime(computed); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// SnapshotHistoryCount returns how many snapshot versions have been
// recorded for an entity in the audit log.
func (s *Store) SnapshotHistoryCount(ctx context.Context, entityID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snapshot_history WHERE entity_id = ?`, entityID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count snapshot history: %w", err)
	}
	return n, nil
}
