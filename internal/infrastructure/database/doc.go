// Package database manages the SQLite connection and schema migrations.
//
// The DB wrapper configures WAL mode, foreign keys, and a single-writer
// connection pool appropriate for SQLite. Migrations are embedded into the
// binary by the migrations package and applied in version order, each in
// its own transaction.
package database
