// Package ledger is the append-only version store.
//
// Every function operates inside a caller-owned kv.Tx so a mutation's
// close-old / open-new / current-row writes commit as one unit. The ledger
// never commits or rolls back on its own.
//
// # Key layout
//
// All parts are separated by a 0x00 byte; type names and IDs may not
// contain NUL (see ir.ValidateKeyPart).
//
//	v 00 type 00 id 00 ts   canonical JSON VersionRecord
//	o 00 type 00 id         8-byte valid_from of the open version
//	c 00 type 00 id         canonical JSON current row (owned by the engine)
//
// ts is the big-endian encoding of the timestamp with its sign bit flipped,
// so byte order equals numeric order and History is a single range scan.
package ledger
