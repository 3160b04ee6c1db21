package storage

import (
	"context"
	"fmt"
	"strings"
)

// schemaSQL is shared by both dialects; {{ID}} expands to the dialect's
// auto-increment primary key.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS refs (
	id {{ID}},
	curie TEXT NOT NULL UNIQUE,
	curie_seq BIGINT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	category TEXT NOT NULL DEFAULT '',
	volume TEXT NOT NULL DEFAULT '',
	page_range TEXT NOT NULL DEFAULT '',
	abstract TEXT NOT NULL DEFAULT '',
	language TEXT NOT NULL DEFAULT '',
	publisher TEXT NOT NULL DEFAULT '',
	issue_name TEXT NOT NULL DEFAULT '',
	date_published TEXT NOT NULL DEFAULT '',
	date_published_start TEXT NOT NULL DEFAULT '',
	date_published_end TEXT NOT NULL DEFAULT '',
	merged_into BIGINT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_refs_merged_into ON refs(merged_into);

CREATE TABLE IF NOT EXISTS cross_references (
	id {{ID}},
	reference_id BIGINT NOT NULL REFERENCES refs(id),
	curie TEXT NOT NULL,
	prefix TEXT NOT NULL,
	identifier TEXT NOT NULL,
	obsolete BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_xref_valid_curie ON cross_references(curie) WHERE NOT obsolete;
CREATE INDEX IF NOT EXISTS idx_xref_reference ON cross_references(reference_id);

CREATE TABLE IF NOT EXISTS resource_identifiers (
	curie TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS authors (
	id {{ID}},
	reference_id BIGINT NOT NULL REFERENCES refs(id),
	author_rank INTEGER,
	name TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name TEXT NOT NULL DEFAULT '',
	orcid TEXT NOT NULL DEFAULT '',
	first_author BOOLEAN NOT NULL DEFAULT FALSE,
	corresponding_author BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_authors_reference ON authors(reference_id);

CREATE TABLE IF NOT EXISTS mesh_terms (
	id {{ID}},
	reference_id BIGINT NOT NULL REFERENCES refs(id),
	heading TEXT NOT NULL,
	qualifier TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_mesh_reference ON mesh_terms(reference_id);

CREATE TABLE IF NOT EXISTS mod_reference_types (
	id {{ID}},
	reference_id BIGINT NOT NULL REFERENCES refs(id),
	provider TEXT NOT NULL,
	reference_type TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_modtypes_reference ON mod_reference_types(reference_id);

CREATE TABLE IF NOT EXISTS corpus_associations (
	id {{ID}},
	reference_id BIGINT NOT NULL REFERENCES refs(id),
	provider TEXT NOT NULL,
	corpus BOOLEAN NOT NULL,
	source TEXT NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_corpus_reference_provider ON corpus_associations(reference_id, provider);

CREATE TABLE IF NOT EXISTS reference_relations (
	id {{ID}},
	source_id BIGINT NOT NULL REFERENCES refs(id),
	target_id BIGINT NOT NULL REFERENCES refs(id),
	relation_type TEXT NOT NULL,
	CHECK (source_id <> target_id)
);

CREATE INDEX IF NOT EXISTS idx_relations_source ON reference_relations(source_id);
CREATE INDEX IF NOT EXISTS idx_relations_target ON reference_relations(target_id);

CREATE TABLE IF NOT EXISTS obsolete_references (
	curie TEXT PRIMARY KEY,
	new_id BIGINT NOT NULL REFERENCES refs(id)
);

CREATE TABLE IF NOT EXISTS content_hashes (
	provider TEXT NOT NULL,
	external_id TEXT NOT NULL,
	hash TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (provider, external_id)
);

CREATE TABLE IF NOT EXISTS versions (
	id {{ID}},
	table_name TEXT NOT NULL,
	row_id BIGINT NOT NULL,
	reference_id BIGINT NOT NULL,
	action TEXT NOT NULL,
	actor TEXT NOT NULL,
	payload TEXT NOT NULL,
	recorded_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_versions_reference ON versions(reference_id);
`

// createSchema creates the database schema if it doesn't exist.
func (d *DB) createSchema(ctx context.Context) error {
	idType := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d.driver == DriverPostgres {
		idType = "BIGSERIAL PRIMARY KEY"
	}
	ddl := strings.ReplaceAll(schemaSQL, "{{ID}}", idType)

	// One statement per Exec so a failure names its statement.
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("executing %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
