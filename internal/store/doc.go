// Package store provides the SQLite-backed durable substrate for asof.
//
// The store implements kv.Substrate over a single ordered table:
//
//	kv(key BLOB PRIMARY KEY, value BLOB NOT NULL) WITHOUT ROWID
//
// BLOB keys compare with memcmp, so SQLite's ordering matches the ledger's
// order-preserving key encoding and a range scan is an index range read.
//
// # Drivers
//
//   - "sqlite3": github.com/mattn/go-sqlite3 (cgo, default)
//   - "sqlite":  modernc.org/sqlite (pure Go, for CGO_ENABLED=0 builds)
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - one open connection: SQLite has a single writer, so the pool is
//     limited to avoid SQLITE_BUSY between our own transactions
//
// Schema migrations are tracked with PRAGMA user_version.
package store
