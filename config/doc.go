// Package config loads the settings of the bookshelf CLI and the reference server.
//
// Values are resolved in three layers: built-in defaults, then an optional YAML file named by
// BOOKSHELF_CONFIG, then environment variables. The client only needs the API base URL, which
// defaults to the local development server.
//
// It also builds PostgreSQL connections for the three supported drivers (pgx pool, database/sql
// with lib/pq, sqlx), selected by DB_ADAPTER.
package config
