// Package session provides the per-connection key/value map used to carry
// state (such as Digest auth realm, nonce and opaque) across requests on the
// same client connection.
//
// A Session lives in memory for the lifetime of its connection. A Store can
// persist it between requests so values survive a process restart or can be
// inspected elsewhere:
//
//	s, err := session.Open(ctx, store, connID)
//	s.Set("nonce", nonce)
//	err = session.Persist(ctx, store, s) // no-op unless dirty
//
// MemoryStore keeps values in process. RedisStore keeps each session in a
// Redis hash with a sliding TTL.
package session
