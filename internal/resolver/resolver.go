// Package resolver canonicalizes raw names into stable entity ids. The
// same (namespace, entity_type, normalized name) always yields the same id,
// forever; entities are created on first resolution and never renamed or
// retyped afterwards.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/truthlayer/truth-mcp/internal/models"
	"github.com/truthlayer/truth-mcp/internal/storage"
)

// DefaultNamespace is used when callers pass an empty namespace.
const DefaultNamespace = "default"

// corporateSuffixes are stripped (repeatedly) from the tail of normalized
// company names. Keyed rule table per entity type keeps this deterministic
// and auditable.
var corporateSuffixes = []string{
	"incorporated", "corporation", "company", "limited",
	"inc", "corp", "llc", "ltd", "plc", "gmbh", "ag", "co",
}

var typeSuffixRules = map[string][]string{
	"company": corporateSuffixes,
}

// Normalize reduces a raw name to its canonical form: trim, lowercase,
// collapse whitespace, fold trailing punctuation, and strip type-specific
// suffixes.
func Normalize(entityType, rawName string) string {
	name := strings.ToLower(strings.TrimSpace(rawName))
	name = strings.Join(strings.Fields(name), " ")

	suffixes := typeSuffixRules[entityType]
	for {
		trimmed := strings.TrimRight(name, " .,")
		stripped := trimmed
		for _, suffix := range suffixes {
			if cut, ok := strings.CutSuffix(stripped, " "+suffix); ok {
				stripped = cut
				break
			}
		}
		if stripped == name {
			break
		}
		name = stripped
	}
	return name
}

// EntityID derives the stable id from namespace, type, and normalized name.
func EntityID(namespace, entityType, normalized string) string {
	sum := sha256.Sum256([]byte(namespace + ":" + entityType + ":" + normalized))
	return "ent_" + hex.EncodeToString(sum[:])[:32]
}

// Resolve normalizes rawName, derives the entity id, and idempotently
// upserts the entity. A new raw variant of an existing entity is appended
// to its aliases. The store may be a transaction-scoped Store so that
// resolution participates in a write batch.
func Resolve(ctx context.Context, st *storage.Store, entityType, rawName, namespace string) (models.Entity, error) {
	if entityType == "" {
		return models.Entity{}, fmt.Errorf("entity_type is required")
	}
	if strings.TrimSpace(rawName) == "" {
		return models.Entity{}, fmt.Errorf("name is required")
	}
	if namespace == "" {
		namespace = DefaultNamespace
	}

	normalized := Normalize(entityType, rawName)
	if normalized == "" {
		return models.Entity{}, fmt.Errorf("name %q normalizes to nothing", rawName)
	}

	entity := models.Entity{
		ID:            EntityID(namespace, entityType, normalized),
		EntityType:    entityType,
		CanonicalName: normalized,
		Namespace:     namespace,
	}
	if raw := strings.TrimSpace(rawName); raw != normalized {
		entity.Aliases = []string{raw}
	}
	return st.UpsertEntity(ctx, entity)
}
