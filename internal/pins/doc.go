// Package pins recognizes pin-marker replies among repository records.
//
// A pin marker is a reply whose whole text is the pin glyph. The package
// narrows generic repository records to typed posts, applies the marker
// predicate, and orders markers by their original creation time.
package pins
