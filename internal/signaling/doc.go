// Package signaling is the WebSocket transport for the pairing service.
//
// Each accepted connection becomes one participant in a relay.Coordinator.
// Frames are JSON envelopes of the form {"event": name, "data": payload};
// inbound events are routed through a single dispatch table and outbound
// events are written by a per-connection writer goroutine draining a
// byte-bounded queue.
package signaling
