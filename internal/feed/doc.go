// Package feed owns the wire contract of the exchange full-channel feed.
//
// Ownership boundary:
// - value model for every inbound frame kind (Message and its variants)
// - Decode: one complete JSON text frame to exactly one Message
// - Encode: Message back to JSON, total for Subscribe/Unsubscribe
//
// The package does no I/O, keeps no state and never logs. Framing,
// connection management and the policy for failed frames belong to the
// caller.
package feed
