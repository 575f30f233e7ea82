// Package domain defines the core types of the org chart editing engine.
//
// # Core Types
//
// Node is a graph vertex: a person backed by a record, or a free-text placeholder.
// Nodes carry sparse style hints (colors, priority badge, department, function).
//
// Row is the unit the backend hands out. A row names a node and may carry a
// link id; rows that share a link id are chained in row order.
//
// Link is an explicit parent/child relationship record. A link id may span several
// segments when it was created from a chained bucket, so every segment keeps its
// ordinal.
//
// Edge is a derived connection between two nodes. Its id is the link id it came
// from, never generated locally, so a refresh yields the same ids.
//
// Graph is the flat element collection handed to a render surface: nodes first,
// then the edges that reference them.
//
// # Validation
//
// Rows, links and records are validated at construction time with struct tags
// instead of null checks scattered across consumers.
package domain
