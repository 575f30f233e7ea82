// Package graph turns the backend's relational answer into a renderable model.
//
// Build is a pure function of the snapshot and the options: rows are walked once,
// the first row naming an id defines the node, rows sharing a link id are chained
// in row order, and explicit links become one edge each. An edge is only emitted
// when both endpoints made it into the node set and no edge already joins the
// pair; everything else is dropped silently and counted in the Result.
package graph
