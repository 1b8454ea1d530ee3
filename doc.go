// Package photesthesis is a grammar-driven, coverage-aware property
// testing engine. Users describe the shape of test inputs as a
// context-sensitive grammar, write a test body that exercises a system
// under test with values drawn from that grammar, and let the engine
// maintain a persistent corpus of (plan, transcript) pairs: on first
// run the corpus is seeded from a k-path covering of the grammar, on
// later runs every stored transcript is replayed to detect regressions
// and the corpus is grown by random sampling toward behaviors (or
// "trajectories") not seen before.
//
// The building blocks, roughly bottom-up:
//
//   - Symbol: interned, totally ordered identifiers.
//   - Value: an immutable s-expression-like datum with a total order
//     and a round-trippable text format.
//   - Plan, Transcript, Corpus: the persistent test records.
//   - Grammar: rules, productions, context flags, and the two
//     generation strategies (uniform random and k-path covering).
//   - Test: the driver that runs plans, hashes trajectories, and
//     checks or expands the corpus via Administer.
//
// Behavior can additionally be observed through an optional 8-bit
// edge-counter region registered by an instrumentation runtime; see
// SetCoverageRegion.
package photesthesis
