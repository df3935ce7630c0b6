// Package ws implements the WebSocket gateway.
//
// Each accepted connection gets a registry entry, a buffered outbound queue,
// and a dedicated write pump. Inbound frames carry typed JSON messages
// (authenticate, joinDeviceTopic, leaveDeviceTopic, publishFix); outbound
// frames carry control acknowledgements, error envelopes, and location
// events fanned out by the broadcast router.
//
// The gateway's Send method is the router's transport primitive: it enqueues
// without blocking and reports an error when the connection is gone or its
// queue is full, so a stalled client can never stall a broadcast.
package ws
