package models

import "errors"

// Error taxonomy for the truth core. All mutating operations fail closed:
// any of these surfaces to the caller with no partial state left behind.
var (
	// ErrSchemaNotFound: no schema registered for an entity type.
	ErrSchemaNotFound = errors.New("schema not found")

	// ErrDuplicateVersion: schema version already exists or is not strictly
	// greater than the latest published version.
	ErrDuplicateVersion = errors.New("duplicate or non-monotonic schema version")

	// ErrEntityImmutability: attempt to rename or retype an existing entity.
	ErrEntityImmutability = errors.New("entity immutability violation")

	// ErrUnconvertibleType: merge winner's type does not match the declared
	// schema type and no converter is registered. Fatal in strict mode.
	ErrUnconvertibleType = errors.New("unconvertible field type")

	// ErrCycleDetected: relationship would close a cycle in a hierarchical
	// relationship type.
	ErrCycleDetected = errors.New("relationship cycle detected")

	// ErrGraphIntegrity: post-write validation found orphans or cycles; the
	// enclosing write batch is rolled back.
	ErrGraphIntegrity = errors.New("graph integrity violation")

	// ErrEntityNotFound: referenced entity does not exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrSnapshotNotFound: no snapshot has been computed for the entity.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrObservationNotFound: referenced observation does not exist.
	ErrObservationNotFound = errors.New("observation not found")
)
