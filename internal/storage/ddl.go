package storage

// TruthSchema is the SQL schema for the truth database.
//
// No foreign keys on observations/relationships: the graph integrity
// checker is the enforcement point, run inside every write batch, so stray
// rows surface as report items instead of opaque constraint failures.
// There are no UPDATE or DELETE statements for observations or snapshots
// anywhere in this package; both tables are append-only by construction
// (snapshots are replaced whole, never patched).
const TruthSchema = `
CREATE TABLE IF NOT EXISTS entities (
    id             TEXT PRIMARY KEY,
    entity_type    TEXT NOT NULL,
    canonical_name TEXT NOT NULL,
    namespace      TEXT NOT NULL,
    aliases        TEXT NOT NULL DEFAULT '[]',
    created_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS observations (
    id                TEXT PRIMARY KEY,
    entity_id         TEXT NOT NULL,
    entity_type       TEXT NOT NULL,
    schema_version    TEXT NOT NULL,
    source_id         TEXT NOT NULL,
    observed_at       TEXT NOT NULL,
    specificity_score REAL NOT NULL DEFAULT 0,
    source_priority   INTEGER NOT NULL DEFAULT 0,
    fields            TEXT NOT NULL,
    created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entity_snapshots (
    entity_id           TEXT PRIMARY KEY,
    entity_type         TEXT NOT NULL,
    schema_version      TEXT NOT NULL,
    snapshot            TEXT NOT NULL,
    provenance          TEXT NOT NULL,
    observation_count   INTEGER NOT NULL,
    last_observation_at TEXT NOT NULL,
    computed_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS snapshot_history (
    seq                 INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id           TEXT NOT NULL,
    schema_version      TEXT NOT NULL,
    snapshot            TEXT NOT NULL,
    provenance          TEXT NOT NULL,
    observation_count   INTEGER NOT NULL,
    computed_at         TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS relationships (
    id                TEXT PRIMARY KEY,
    relationship_type TEXT NOT NULL,
    source_entity_id  TEXT NOT NULL,
    target_entity_id  TEXT NOT NULL,
    source_id         TEXT NOT NULL DEFAULT '',
    metadata          TEXT NOT NULL DEFAULT 'null',
    created_at        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS schema_versions (
    entity_type       TEXT NOT NULL,
    schema_version    TEXT NOT NULL,
    field_definitions TEXT NOT NULL,
    merge_policies    TEXT NOT NULL,
    published_at      TEXT NOT NULL,
    PRIMARY KEY (entity_type, schema_version)
);

CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
CREATE INDEX IF NOT EXISTS idx_observations_entity ON observations(entity_id);
CREATE INDEX IF NOT EXISTS idx_observations_observed ON observations(entity_id, observed_at);
CREATE INDEX IF NOT EXISTS idx_relationships_source ON relationships(source_entity_id, relationship_type);
CREATE INDEX IF NOT EXISTS idx_relationships_target ON relationships(target_entity_id, relationship_type);
CREATE INDEX IF NOT EXISTS idx_snapshot_history_entity ON snapshot_history(entity_id);
CREATE INDEX IF NOT EXISTS idx_schema_versions_type ON schema_versions(entity_type);
`
