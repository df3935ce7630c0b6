// Package api implements the HTTP surface: health, the WebSocket upgrade
// route, and the server-to-server location ingest endpoint. All responses use
// a unified JSON envelope with a correlation id.
package api
