package db

import "fmt"

// schemaTemplate is the database schema initialization SQL. The single
// %d placeholder is the embedding dimension, fixed per store; the HNSW
// index rejects vectors of any other size.
const schemaTemplate = `
    -- ==========================================================================
    -- CLUSTER TABLE
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS cluster SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON cluster TYPE string;
    DEFINE FIELD IF NOT EXISTS centroid ON cluster TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS representative_query ON cluster TYPE string;
    DEFINE FIELD IF NOT EXISTS enhancement ON cluster TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS enhancement_version ON cluster TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS total_queries ON cluster TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS success_count ON cluster TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS success_rate ON cluster TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS version ON cluster TYPE int DEFAULT 1;
    DEFINE FIELD IF NOT EXISTS created_at ON cluster TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS updated_at ON cluster TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS cluster_updated ON cluster FIELDS updated_at;
    DEFINE INDEX IF NOT EXISTS cluster_centroid ON cluster FIELDS centroid HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- ASSIGNMENT TABLE (one row per processed query)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS assignment SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS query_text ON assignment TYPE string;
    DEFINE FIELD IF NOT EXISTS query_embedding ON assignment TYPE option<array<float>>;
    DEFINE FIELD IF NOT EXISTS cluster ON assignment TYPE record<cluster>;
    DEFINE FIELD IF NOT EXISTS similarity ON assignment TYPE float;
    DEFINE FIELD IF NOT EXISTS session_id ON assignment TYPE string;
    DEFINE FIELD IF NOT EXISTS user_id ON assignment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS response_text ON assignment TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS processing_time_ms ON assignment TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS feedback_positive ON assignment TYPE option<bool>;
    DEFINE FIELD IF NOT EXISTS feedback_score ON assignment TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON assignment TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS labeled_at ON assignment TYPE option<datetime>;

    DEFINE INDEX IF NOT EXISTS assignment_user ON assignment FIELDS user_id;
    DEFINE INDEX IF NOT EXISTS assignment_created ON assignment FIELDS created_at;
    DEFINE INDEX IF NOT EXISTS assignment_cluster ON assignment FIELDS cluster;

    -- ==========================================================================
    -- ENHANCEMENT_LOG TABLE (append-only revision history)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS enhancement_log SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS cluster ON enhancement_log TYPE record<cluster>;
    DEFINE FIELD IF NOT EXISTS previous_text ON enhancement_log TYPE string;
    DEFINE FIELD IF NOT EXISTS new_text ON enhancement_log TYPE string;
    DEFINE FIELD IF NOT EXISTS trigger ON enhancement_log TYPE string
        ASSERT $value IN ["manual", "learning", "rollback"];
    DEFINE FIELD IF NOT EXISTS confidence ON enhancement_log TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS created_at ON enhancement_log TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS enhancement_log_cluster ON enhancement_log FIELDS cluster;
    DEFINE INDEX IF NOT EXISTS enhancement_log_created ON enhancement_log FIELDS created_at;

    -- ==========================================================================
    -- AUDIT_EVENT TABLE (append-only structured event log)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS audit_event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS component ON audit_event TYPE string;
    DEFINE FIELD IF NOT EXISTS level ON audit_event TYPE string;
    DEFINE FIELD IF NOT EXISTS message ON audit_event TYPE string;
    DEFINE FIELD IF NOT EXISTS metadata ON audit_event TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS session_id ON audit_event TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS duration_ms ON audit_event TYPE option<int>;
    DEFINE FIELD IF NOT EXISTS created_at ON audit_event TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS audit_event_component ON audit_event FIELDS component;
    DEFINE INDEX IF NOT EXISTS audit_event_created ON audit_event FIELDS created_at;
`

// SchemaSQL renders the schema for the given embedding dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(schemaTemplate, dimension)
}
