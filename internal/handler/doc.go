// Package handler implements the HTTP API of the org chart server.
//
// The REST routes under /api read and write the backend directly: nodes,
// links, backing records, stored positions, and import/export of fragments
// in yaml, json or toml. The routes under /api/sessions drive remote editing
// sessions: a client opens a session, posts pointer events and answers the
// prompts the session publishes on /events.
//
// Errors are returned as JSON {error, kind, details}. The status follows the
// error kind: not_found is 404, invalid is 400, write_rejected and
// duplicate_edge are 409 and fetch failures are 502.
package handler
