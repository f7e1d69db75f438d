// Package epochmap implements a concurrent, growable, unordered
// associative container: a lock-free hash map (Map) and set (Set) with
// epoch-based memory reclamation, immutable CAS-published bucket lists,
// and cooperative background migration on growth.
//
// Reads (Find, Contains, Range) never take a lock; Find and Contains
// wait (a bounded spin, then short sleeps) only while the bucket they
// need is being copied by a migration.
// Writes (Insert, Upsert, Remove) retry under CAS contention but never
// hold a lock across more than a single bucket publish. Memory behind a
// removed or superseded entry is freed only after every worker that
// could have observed it has exited its current operation, via the
// package's internal epoch pool.
//
// A Map grows by doubling its bucket array when either a single
// bucket's entry list or the table's average load crosses a
// configurable threshold; growth is driven cooperatively by whichever
// goroutines happen to be writing at the time, not by a dedicated
// background goroutine.
package epochmap
