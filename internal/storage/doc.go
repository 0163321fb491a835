// Package storage is the persistence layer for the dispatch engine.
//
// It owns:
//   - Per-user check-in settings (cadence + work hours + recipient chat)
//   - The dispatch claim table backing the dedup ledger
//   - An append-only audit log of dispatch outcomes
//
// The claim operations are the only synchronization primitive in the system:
// TryClaim and FinishClaim must each be a single conditional write in every
// driver, never read-then-write.
package storage
