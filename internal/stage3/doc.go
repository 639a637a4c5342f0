// Package stage3 defines the normalized query descriptors consumed by the
// SQLite adapter.
//
// A stage-three query names a target model and carries exactly the payload
// its operation needs: Create, CreateEach, Find, Update, Destroy, Count,
// Sum, Avg and Join are separate types behind the sealed Query interface.
// Criteria hold the where-predicate tree (And, Or, Compare), projection,
// sort, limit and skip.
//
// Queries are usually built directly in Go. Decode and DecodeYAML accept the
// loose map form used by query files and the CLI, and run Validate before
// returning.
package stage3
