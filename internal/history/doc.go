// Package history stores completed runs so they can be listed and
// inspected later.
//
// The main components are:
//
//   - [Store]: Interface defining save and query operations
//   - [MemoryStore]: In-memory implementation, used in tests and when no
//     database path is configured
//   - [SQLiteStore]: SQLite-backed implementation for the sitecheck command
//   - [PostgresStore]: PostgreSQL-backed implementation for shared history
//   - [Entry]: A run summary together with its report records
//
// [Open] picks the implementation from the location it is given. All
// implementations are safe for concurrent access.
package history
