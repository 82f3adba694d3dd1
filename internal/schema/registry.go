// Package schema holds the versioned schema registry and the type
// converter table consulted by the reducer when historical observations
// diverge from the active schema.
package schema

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

// Registry reads and publishes schema versions. Reads go straight to
// storage; publication is serialized so version monotonicity cannot race.
// All access is through an explicit handle — there is no ambient "active
// schema" global.
type Registry struct {
	store *storage.Store

	mu sync.Mutex // serializes Register

	convMu sync.RWMutex
	convs  map[convKey]ConverterFunc
}

// NewRegistry creates a registry with the built-in converters installed.
func NewRegistry(store *storage.Store) *Registry {
	r := &Registry{store: store, convs: map[convKey]ConverterFunc{}}
	r.registerBuiltins()
	return r
}

// Register publishes a new schema version. The version must be valid
// semver and strictly greater than every previously published version for
// the entity type; once published it never changes.
func (r *Registry) Register(ctx context.Context, sch models.Schema) error {
	if sch.EntityType == "" {
		return fmt.Errorf("entity_type is required")
	}
	if !semver.IsValid("v" + sch.SchemaVersion) {
		return fmt.Errorf("schema_version %q is not valid semver", sch.SchemaVersion)
	}
	if len(sch.FieldDefinitions) == 0 {
		return fmt.Errorf("schema %s@%s declares no fields", sch.EntityType, sch.SchemaVersion)
	}
	for name, def := range sch.FieldDefinitions {
		if !models.ValidFieldType(def.Type) {
			return fmt.Errorf("field %q: unknown type %q", name, def.Type)
		}
		if def.Type == models.FieldEnum && len(def.Enum) == 0 {
			return fmt.Errorf("field %q: enum type requires enum values", name)
		}
	}
	for name, pol := range sch.MergePolicies {
		if !models.ValidMergeStrategy(pol) {
			return fmt.Errorf("field %q: unknown merge strategy %q", name, pol)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.store.ListSchemaVersions(ctx, sch.EntityType)
	if err != nil {
		return err
	}
	for _, prev := range existing {
		if semver.Compare("v"+sch.SchemaVersion, "v"+prev.SchemaVersion) <= 0 {
			return fmt.Errorf("version %s must be greater than published %s: %w",
				sch.SchemaVersion, prev.SchemaVersion, models.ErrDuplicateVersion)
		}
	}
	return r.store.InsertSchemaVersion(ctx, sch)
}

// Active returns the highest published version for an entity type.
func (r *Registry) Active(ctx context.Context, entityType string) (models.Schema, error) {
	versions, err := r.store.ListSchemaVersions(ctx, entityType)
	if err != nil {
		return models.Schema{}, err
	}
	if len(versions) == 0 {
		return models.Schema{}, fmt.Errorf("entity type %q: %w", entityType, models.ErrSchemaNotFound)
	}
	active := versions[0]
	for _, v := range versions[1:] {
		if semver.Compare("v"+v.SchemaVersion, "v"+active.SchemaVersion) > 0 {
			active = v
		}
	}
	return active, nil
}

// Get returns a specific historical version. The reducer targets the
// active schema; historical versions exist to interpret the original
// typing of old observations.
func (r *Registry) Get(ctx context.Context, entityType, version string) (models.Schema, error) {
	return r.store.GetSchemaVersion(ctx, entityType, version)
}

// List returns all published versions for an entity type.
func (r *Registry) List(ctx context.Context, entityType string) ([]models.Schema, error) {
	return r.store.ListSchemaVersions(ctx, entityType)
}
