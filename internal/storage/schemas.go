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

// InsertSchemaVersion persists one published schema version. Published
// versions are immutable; a second insert for the same (entity_type,
// schema_version) fails with ErrDuplicateVersion.
func (s *Store) InsertSchemaVersion(ctx context.Context, sch models.Schema) error {
	defs, err := json.Marshal(sch.FieldDefinitions)
	if err != nil {
		return fmt.Errorf("marshal field definitions: %w", err)
	}
	policies, err := json.Marshal(sch.MergePolicies)
	if err != nil {
		return fmt.Errorf("marshal merge policies: %w", err)
	}
	if sch.PublishedAt.IsZero() {
		sch.PublishedAt = time.Now()
	}

	result, err := s.q.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_versions
		 (entity_type, schema_version, field_definitions, merge_policies, published_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sch.EntityType, sch.SchemaVersion, string(defs), string(policies), encodeTime(sch.PublishedAt),
	)
	if err != nil {
		return fmt.Errorf("insert schema version: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("schema %s@%s already published: %w",
			sch.EntityType, sch.SchemaVersion, models.ErrDuplicateVersion)
	}
	return nil
}

// GetSchemaVersion returns one historical schema version.
func (s *Store) GetSchemaVersion(ctx context.Context, entityType, version string) (models.Schema, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT entity_type, schema_version, field_definitions, merge_policies, published_at
		 FROM schema_versions WHERE entity_type = ? AND schema_version = ?`,
		entityType, version,
	)
	sch, err := scanSchema(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Schema{}, fmt.Errorf("schema %s@%s: %w", entityType, version, models.ErrSchemaNotFound)
	}
	return sch, err
}

// ListSchemaVersions returns every published version for an entity type in
// publication order. Callers pick the active (highest semver) version.
func (s *Store) ListSchemaVersions(ctx context.Context, entityType string) ([]models.Schema, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT entity_type, schema_version, field_definitions, merge_policies, published_at
		 FROM schema_versions WHERE entity_type = ? ORDER BY published_at, schema_version`,
		entityType,
	)
	if err != nil {
		return nil, fmt.Errorf("query schema versions: %w", err)
	}
	defer rows.Close()

	var schemas []models.Schema
	for rows.Next() {
		sch, err := scanSchema(rows)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, sch)
	}
	return schemas, rows.Err()
}

func scanSchema(row rowScanner) (models.Schema, error) {
	var sch models.Schema
	var defs, policies, published string
	err := row.Scan(&sch.EntityType, &sch.SchemaVersion, &defs, &policies, &published)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Schema{}, err
		}
		return models.Schema{}, fmt.Errorf("scan schema: %w", err)
	}
	if err := json.Unmarshal([]byte(defs), &sch.FieldDefinitions); err != nil {
		return models.Schema{}, fmt.Errorf("decode field definitions: %w", err)
	}
	if err := json.Unmarshal([]byte(policies), &sch.MergePolicies); err != nil {
		return models.Schema{}, fmt.Errorf("decode merge policies: %w", err)
	}
	if sch.PublishedAt, err = decodeTime(published); err != nil {
		return models.Schema{}, err
	}
	return sch, nil
}
