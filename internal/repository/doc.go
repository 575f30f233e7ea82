// Package repository defines the data access interfaces for the org chart.
//
// The backend is split the way the editing engine consumes it: a Fetcher that
// answers with the authoritative snapshot of one account, and a Writer that
// creates, updates and deletes nodes and links by kind. The sqlite subpackage
// implements both plus record search, position persistence and bulk
// import/export.
//
// # Fetch shapes
//
// A fetch answers in one of two shapes. ShapeSeparated returns one row per node
// and the links as explicit parent/child pairs. ShapeRows returns one row per
// link membership, chained in ordinal order and grouped by link id, plus one
// row per node that belongs to no link. Both feed the same graph builder.
//
// # Testing
//
// The sqlite repository is tested against in-memory databases.
package repository
