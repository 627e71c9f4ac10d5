// Package realtime serves the beacon proximity websocket channel.
//
// Every authenticated connection joins the session of its user (see
// SessionKey). A user may hold several connections at once; proximity
// updates and notifications are broadcast to all of them and never to
// another user's session.
//
// Client messages are JSON objects discriminated by "type":
//
//	{"type":"proximity_event","beacon_id":"bcn-1","distance":1.5,"motion_detected":true}
//	{"type":"notification_ack","notification_id":"ntf-1"}
//
// A recorded proximity event is answered by a broadcast to the sender's
// session:
//
//	{"type":"proximity_update","beacon_id":"bcn-1","distance":1.5,"timestamp":"2026-10-16T12:00:00.000000Z"}
//
// An acknowledgement is answered directly with
// {"status":"Notification acknowledged"}. Failures are answered with
// {"error":"..."} and the connection stays open. A connection whose
// credential is rejected is closed with code 4001 before it joins any
// session.
//
// Across several service instances, a ChannelFanout relays broadcasts over
// Redis so each instance delivers to its own members.
package realtime
