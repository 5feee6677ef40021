// Package pagination follows opaque cursors until a listing is exhausted.
//
// Page failures are retried at the same cursor. The loop never skips a page,
// so a page that keeps failing is retried until the optional retry limit is
// reached or the context is cancelled.
package pagination
