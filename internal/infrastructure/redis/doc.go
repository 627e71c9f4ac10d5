// Package redis provides the optional channel layer that lets several
// Beacon Notify Core instances share session broadcasts.
//
// A broadcast for a session is published to <prefix><session key>. Each
// instance pattern-subscribes to <prefix>* and delivers whatever arrives
// to its own local connections. With the channel layer disabled, broadcasts
// never leave the process.
package redis
