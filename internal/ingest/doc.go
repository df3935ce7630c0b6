// Package ingest implements the server-side MQTT device bridge.
//
// Trackers that cannot hold a WebSocket open publish fixes to an MQTT broker
// instead. The bridge subscribes to <prefix>/<deviceId>/fix, decodes each
// payload as JSON or as an NMEA RMC sentence, and feeds the result into the
// broadcast router exactly as if a connected client had published it. Producer
// authentication happens at the broker boundary, so bridge traffic does not
// pass the per-connection credential check.
package ingest
