package reducer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/truthlayer/truth-mcp/internal/integrity"
	"github.com/truthlayer/truth-mcp/internal/logger"
	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/resolver"
	"github.com/truthlayer/truth-mcp/internal/schema"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

// Engine orchestrates the observation -> reducer -> snapshot pipeline.
// Snapshot recomputation for one entity is serialized: ingests for the same
// entity queue on a per-entity lock, and concurrent recompute requests
// collapse through singleflight. All writes of one ingest (entity upsert,
// observation append, snapshot replace, integrity check) share a single
// transaction and commit or roll back together.
type Engine struct {
	store   *storage.Store
	reg     *schema.Registry
	checker *integrity.Checker
	log     *logger.Logger
	opts    Options

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
	group singleflight.Group
}

// New creates an engine. The clock is taken as a dependency so computation
// is reproducible under test.
func New(store *storage.Store, reg *schema.Registry, checker *integrity.Checker, log *logger.Logger, opts Options) *Engine {
	return &Engine{
		store:   store,
		reg:     reg,
		checker: checker,
		log:     log,
		opts:    opts,
		now:     time.Now,
		locks:   map[string]*sync.Mutex{},
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// IngestRequest is one observation entering the pipeline. Either EntityID
// (pre-resolved) or EntityName (resolved here) identifies the entity.
type IngestRequest struct {
	EntityType       string
	EntityID         string
	EntityName       string
	Namespace        string
	SourceID         string
	ObservedAt       time.Time
	SpecificityScore float64
	SourcePriority   int
	Fields           map[string]any
}

// IngestResult reports what one ingest produced.
type IngestResult struct {
	Entity      models.Entity      `json:"entity"`
	Observation models.Observation `json:"observation"`
	Inserted    bool               `json:"inserted"`
	Snapshot    models.Snapshot    `json:"snapshot"`
}

// Ingest runs the full transactional write batch for one observation:
// resolve entity, append observation, recompute the snapshot, validate
// graph integrity. Any failure leaves no partial state.
func (e *Engine) Ingest(ctx context.Context, req IngestRequest) (IngestResult, error) {
	if req.EntityType == "" {
		return IngestResult{}, fmt.Errorf("entity_type is required")
	}
	if len(req.Fields) == 0 {
		return IngestResult{}, fmt.Errorf("fields must be non-empty")
	}
	if req.SourceID == "" {
		return IngestResult{}, fmt.Errorf("source_id is required")
	}
	if req.ObservedAt.IsZero() {
		return IngestResult{}, fmt.Errorf("observed_at is required")
	}

	// Active schema is loaded before any write: a missing schema aborts the
	// whole computation without touching storage.
	active, err := e.reg.Active(ctx, req.EntityType)
	if err != nil {
		return IngestResult{}, err
	}

	entityID := req.EntityID
	if entityID == "" {
		ns := req.Namespace
		if ns == "" {
			ns = resolver.DefaultNamespace
		}
		entityID = resolver.EntityID(ns, req.EntityType, resolver.Normalize(req.EntityType, req.EntityName))
	}

	unlock := e.lockEntity(entityID)
	defer unlock()

	var result IngestResult
	err = e.store.Tx(ctx, func(tx *storage.Store) error {
		var entity models.Entity
		var err error
		if req.EntityID != "" {
			entity, err = tx.GetEntity(ctx, req.EntityID)
			if err != nil {
				return err
			}
			if entity.EntityType != req.EntityType {
				return fmt.Errorf("entity %q is %q, observation claims %q: %w",
					entity.ID, entity.EntityType, req.EntityType, models.ErrEntityImmutability)
			}
		} else {
			entity, err = resolver.Resolve(ctx, tx, req.EntityType, req.EntityName, req.Namespace)
			if err != nil {
				return err
			}
		}

		obs := models.Observation{
			EntityID:         entity.ID,
			EntityType:       req.EntityType,
			SchemaVersion:    active.SchemaVersion,
			SourceID:         req.SourceID,
			ObservedAt:       req.ObservedAt,
			SpecificityScore: req.SpecificityScore,
			SourcePriority:   req.SourcePriority,
			Fields:           req.Fields,
			CreatedAt:        e.now(),
		}
		obs.ID = ObservationID(obs)

		inserted, err := tx.AppendObservation(ctx, obs)
		if err != nil {
			return err
		}

		snap, err := e.recompute(ctx, tx, entity.ID, active)
		if err != nil {
			return err
		}

		report, err := e.checker.Validate(ctx, tx)
		if err != nil {
			return err
		}
		if err := e.checker.Enforce(report); err != nil {
			return err
		}

		result = IngestResult{Entity: entity, Observation: obs, Inserted: inserted, Snapshot: snap}
		return nil
	})
	if err != nil {
		return IngestResult{}, err
	}

	e.log.Info("observation ingested",
		"entity_id", result.Entity.ID,
		"observation_id", result.Observation.ID,
		"inserted", result.Inserted,
		"schema_version", result.Snapshot.SchemaVersion,
		"fields", len(result.Snapshot.Fields),
	)
	return result, nil
}

// ComputeSnapshot recomputes and persists the snapshot for an entity from
// its current observation set and the active schema. Concurrent calls for
// the same entity collapse into one computation.
func (e *Engine) ComputeSnapshot(ctx context.Context, entityID string) (models.Snapshot, error) {
	v, err, _ := e.group.Do(entityID, func() (any, error) {
		unlock := e.lockEntity(entityID)
		defer unlock()

		entity, err := e.store.GetEntity(ctx, entityID)
		if err != nil {
			return nil, err
		}
		active, err := e.reg.Active(ctx, entity.EntityType)
		if err != nil {
			return nil, err
		}

		var snap models.Snapshot
		err = e.store.Tx(ctx, func(tx *storage.Store) error {
			snap, err = e.recompute(ctx, tx, entityID, active)
			return err
		})
		if err != nil {
			return nil, err
		}
		return snap, nil
	})
	if err != nil {
		return models.Snapshot{}, err
	}
	return v.(models.Snapshot), nil
}

// recompute loads all observations inside the transaction, reduces, and
// replaces the stored snapshot.
func (e *Engine) recompute(ctx context.Context, tx *storage.Store, entityID string, active models.Schema) (models.Snapshot, error) {
	obs, err := tx.ListObservations(ctx, entityID)
	if err != nil {
		return models.Snapshot{}, err
	}

	snap, err := Reduce(entityID, obs, active, e.reg, e.now(), e.opts)
	if err != nil {
		return models.Snapshot{}, err
	}
	if err := tx.ReplaceSnapshot(ctx, snap); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// lockEntity serializes snapshot writes per entity.
func (e *Engine) lockEntity(entityID string) func() {
	e.mu.Lock()
	l, ok := e.locks[entityID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[entityID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// ObservationID derives the deterministic content hash id for an
// observation, so re-delivery of the same payload dedups for free.
func ObservationID(o models.Observation) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%s", o.EntityID, o.SourceID, o.ObservedAt.UTC().Format(time.RFC3339Nano), canonicalJSON(o.Fields))
	return "obs_" + hex.EncodeToString(h.Sum(nil))[:32]
}
