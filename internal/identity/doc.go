// Package identity turns a caller-supplied handle or DID into the durable
// actor identifier and locates the actor's data-hosting endpoint.
//
// Resolution never substitutes a default endpoint: a missing DID document, a
// missing personal data server entry, and a malformed endpoint are distinct
// fatal conditions.
package identity
