// Package lifecycle manages the life of an upload across the blob store and the metadata store.
//
// The two stores share no transaction, so every multi-store operation is an ordered sequence of idempotent steps:
//
//   - create: reserve key, write blob, insert metadata (compensate by deleting the blob if the insert fails)
//   - read:   fetch blob, confirm metadata
//   - purge:  delete blob, delete metadata
//
// A live metadata record therefore always has its blob, and any sequence cut short by a crash can be replayed.
package lifecycle
