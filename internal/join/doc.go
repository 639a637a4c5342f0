// Package join resolves join queries: a primary statement plus the child
// statements that populate each declared association.
//
// # Planning
//
// NewPlan splits associations in two:
//
//   - inline: to-one, unfiltered, child key unique. Folded into the parent
//     statement with LEFT JOIN; columns come back as alias__column.
//   - child: everything else. Runs after the parent statement with the
//     distinct parent keys bound as IN (...), or one statement per parent
//     key when the association paginates.
//
// Many-to-many associations go through a junction model: junction rows are
// read first, then the related records they reference.
//
// # Resolution
//
// Resolver.Resolve executes the plan over a Querier. An empty parent result
// returns immediately and runs no child statement. Every row, parent or
// nested, passes through the record marshaler before it is returned.
package join
