// Package service implements business logic for the orgchart application.
//
// This package provides the service layer that coordinates between the HTTP
// handlers, the editing sessions and the repository, implementing validation
// and event publishing.
//
// # Services
//
// GraphService wraps the repository. It satisfies the fetch and write contracts
// the reconciliation and mutation controllers expect, adapts record search to
// the typeahead and stored positions to the preset layout, and handles
// import/export via codec adapters.
//
// # Event System
//
// Every write publishes an event via EventBus. Editing sessions subscribe and
// reconcile on graph_updated, and the SSE hub forwards events to browsers.
package service
