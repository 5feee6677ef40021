// Package migrate converts pin-marker replies into saved posts.
//
// The Service resolves the actor, opens a session on the actor's data-hosting
// endpoint, discovers pin markers in chronological order, saves each pinned
// post, and optionally deletes the marker replies. Every network call is
// issued sequentially and progress is streamed through a ProgressReporter.
package migrate
