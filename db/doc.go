// Package db provides the persistent event archive for the Sazed engine.
// It encapsulates all interactions with the underlying SQL database and
// implements the domain.EventArchive interface on top of SQLite.
//
// This package is responsible for:
// - Establishing and managing database connections (`db.go`).
// - Defining database-specific data structures that map to SQL table schemas.
// - Handling data conversion between domain structs (from the `domain` package)
//   and database-friendly structs, including the use of `sql.Null*` types for nullable fields.
// - Managing database migrations (`migrations/`).
// - Providing common database utility types (`types.go`).
package db
