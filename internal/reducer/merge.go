// Package reducer computes the canonical snapshot for an entity from its
// full observation set. Reduction is a pure function of (observations,
// schema, clock): recomputing over the same set always yields the same
// snapshot, regardless of the order observations were inserted.
package reducer

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/truthlayer/truth-mcp/internal/models"
)

// Converter coerces a winning value to its declared field type. Implemented
// by schema.Registry.
type Converter interface {
	Convert(value any, def models.FieldDefinition) (any, bool, error)
}

// Options control reduction behavior.
type Options struct {
	// StrictTypes makes an unconvertible winning value fatal to the whole
	// computation. When false the raw value is forwarded and the field's
	// provenance carries a warning annotation.
	StrictTypes bool
}

// Reduce merges all observations for one entity into a snapshot under the
// active schema. Candidate fields are the union of fields present in any
// observation — including fields the active schema no longer declares, so
// data recorded under older schema versions still surfaces.
func Reduce(entityID string, obs []models.Observation, sch models.Schema, conv Converter, now time.Time, opts Options) (models.Snapshot, error) {
	snap := models.Snapshot{
		EntityID:         entityID,
		EntityType:       sch.EntityType,
		SchemaVersion:    sch.SchemaVersion,
		Fields:           map[string]any{},
		Provenance:       map[string]models.Provenance{},
		ObservationCount: len(obs),
		ComputedAt:       now,
	}

	fieldNames := map[string]bool{}
	for _, o := range obs {
		if o.ObservedAt.After(snap.LastObservationAt) {
			snap.LastObservationAt = o.ObservedAt
		}
		for name := range o.Fields {
			fieldNames[name] = true
		}
	}

	// Sorted field order keeps iteration (and any failure) deterministic.
	names := make([]string, 0, len(fieldNames))
	for name := range fieldNames {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		var contributing []models.Observation
		for _, o := range obs {
			if _, ok := o.Fields[name]; ok {
				contributing = append(contributing, o)
			}
		}

		strategy := sch.Policy(name)
		if strategy == models.MergeArray {
			value, ids := mergeArray(name, contributing)
			snap.Fields[name] = value
			snap.Provenance[name] = models.Provenance{ObservationIDs: ids}
			continue
		}

		winner := pickWinner(strategy, contributing)
		value := winner.Fields[name]
		prov := models.Provenance{ObservationID: winner.ID}

		if def, declared := sch.FieldDefinitions[name]; declared {
			converted, _, err := conv.Convert(value, def)
			if err != nil {
				if opts.StrictTypes {
					return models.Snapshot{}, fmt.Errorf("field %q from observation %s: %w", name, winner.ID, err)
				}
				prov.Warning = fmt.Sprintf("kept raw value: %v", err)
			} else {
				value = converted
			}
		}

		snap.Fields[name] = value
		snap.Provenance[name] = prov
	}

	return snap, nil
}

// pickWinner applies one scalar merge strategy. Every strategy ends in a
// lexicographic id comparison, so the pick is total and deterministic even
// for identical timestamps and priorities.
func pickWinner(strategy models.MergeStrategy, obs []models.Observation) models.Observation {
	winner := obs[0]
	for _, o := range obs[1:] {
		if beats(strategy, o, winner) {
			winner = o
		}
	}
	return winner
}

func beats(strategy models.MergeStrategy, a, b models.Observation) bool {
	switch strategy {
	case models.MergeHighestPriority:
		if a.SourcePriority != b.SourcePriority {
			return a.SourcePriority > b.SourcePriority
		}
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
	case models.MergeMostSpecific:
		if a.SpecificityScore != b.SpecificityScore {
			return a.SpecificityScore > b.SpecificityScore
		}
		if a.SourcePriority != b.SourcePriority {
			return a.SourcePriority > b.SourcePriority
		}
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
	default: // last_write
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
		if a.SourcePriority != b.SourcePriority {
			return a.SourcePriority > b.SourcePriority
		}
	}
	return a.ID > b.ID
}

// mergeArray unions the field's values across all contributing
// observations, de-duplicated and ordered by canonical JSON encoding.
// Provenance is the sorted list of every contributing observation id.
func mergeArray(field string, obs []models.Observation) ([]any, []string) {
	seen := map[string]any{}
	var ids []string
	for _, o := range obs {
		ids = append(ids, o.ID)
		value := o.Fields[field]
		elems, ok := value.([]any)
		if !ok {
			elems = []any{value}
		}
		for _, el := range elems {
			key := canonicalJSON(el)
			if _, dup := seen[key]; !dup {
				seen[key] = el
			}
		}
	}

	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	merged := make([]any, 0, len(keys))
	for _, k := range keys {
		merged = append(merged, seen[k])
	}
	sort.Strings(ids)
	return merged, ids
}

// canonicalJSON is a stable encoding for value identity: encoding/json
// sorts map keys, so equal values always encode equally.
func canonicalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v", v)
	}
	return string(data)
}
