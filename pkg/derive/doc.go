// Package derive implements incremental denormalization over keyed,
// change-notifying collections: pure derivation functions (reindex and
// left-join enrichment) wired into a dependency graph that recomputes only
// the downstream entries whose inputs changed.
//
// Key components:
//   - Builder: declares base collections, wires derivations in dependency
//     order and registers named views; runs once at startup.
//   - Graph: the built, immutable graph; serializes base-collection deltas
//     through the derivation chain under a single propagation lock so that
//     every lookup inside one derivation call observes a single consistent
//     snapshot of its inputs.
//   - Reindex: re-keys a collection by a foreign key, value shape unchanged.
//   - Join, Join3: left joins with per-lookup fallback; one output entry per
//     primary entry, always, regardless of lookup misses.
//
// Derivation callbacks are pure and synchronous: they hold no state across
// invocations beyond the materialized output and the reverse indexes needed
// for O(|changes|) recomputation, and they never block, perform I/O or spawn
// goroutines.
package derive
