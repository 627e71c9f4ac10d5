// Package beacon is the persistence gateway for beacon hardware, the
// proximity events reported against it, and the notifications derived
// from those events.
//
// Gateway is the narrow contract the realtime layer depends on. It covers
// beacon lookup, proximity event storage, and notification lookup and
// acknowledgement. SQLiteRepository implements it on top of the schema in
// the migrations package.
//
// Identifiers are opaque strings. Lookups return ErrBeaconNotFound or
// ErrNotificationNotFound when no row matches; every other failure is a
// wrapped storage error.
package beacon
