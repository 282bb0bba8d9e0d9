// Package relay is the matchmaking and relay engine.
//
// It pairs anonymous participants two at a time in arrival order, tracks
// which two participants share a session, and forwards opaque signaling
// payloads (SDP, ICE candidates) and chat text to the other member of a
// session. It never inspects signaling payloads and never owns sockets; the
// transport hands it a Handle per connection.
//
// All mutations go through Coordinator, which serializes them behind a
// single mutex. Registry, Queue, SessionStore and Router are not safe for
// concurrent use on their own.
package relay
