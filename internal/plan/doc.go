// Package plan defines the declarative unit of deferred change applied by the
// mutation authority, and the merger that folds an ordered list of plans into
// one.
//
// A Plan carries four independent buckets: scalar field overwrites (set),
// sub-entity creations (add), sub-entity removals (delete), and top-level
// entity materializations (create). An empty plan is a legal no-op. Plans are
// value types: builders and the merger always return new plans and never
// mutate their inputs.
package plan
