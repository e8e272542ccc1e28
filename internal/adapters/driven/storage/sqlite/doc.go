// Package sqlite keeps Mira's document records and chunk vectors in one
// SQLite file (modernc.org/sqlite, no CGO).
//
// Store.DocumentStore and Store.VectorIndex share the connection. Search is an
// exact cosine scan over the stored vectors, which is fast enough for a
// corpus of country profiles and avoids an extension dependency.
//
// Migrations live in migrations/ as NNN_name.up.sql. They are applied in
// version order, each in its own transaction, and recorded in
// schema_migrations. A database written by a newer Mira is refused rather
// than modified. Files ending in .down.sql are kept for manual rollback and
// never run.
//
// The default file is ~/.mira/data/mira.db, opened in WAL mode with a busy
// timeout so the CLI and a running MCP server can share it.
package sqlite
