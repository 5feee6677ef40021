// Package atproto wraps the XRPC endpoints pin2saved relies on.
//
// It layers typed request and response structures over HTTP queries and
// procedures, exposes handle and DID document lookups for identity
// resolution, and opens authenticated repository sessions either with an app
// password or with an externally issued access token.
package atproto
