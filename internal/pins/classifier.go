package pins

import (
	"encoding/json"
	"slices"
	"strings"
	"unicode"

	"github.com/temirov/pin2saved/internal/atproto"
)

const (
	// PostCollection is the record type tag of posts.
	PostCollection = "app.bsky.feed.post"
	// PinGlyph is the only text a pin-marker reply may carry.
	PinGlyph = "📌"

	byteOrderMarkRuneConstant = '\uFEFF'
)

// ReplyRef links a reply to its parent and thread root.
type ReplyRef struct {
	Root   atproto.StrongRef `json:"root"`
	Parent atproto.StrongRef `json:"parent"`
}

// Post is a repository record narrowed to the post variant.
type Post struct {
	URI       string
	CID       string
	Text      string
	Reply     *ReplyRef
	CreatedAt string
}

// Marker is a post qualifying as a pin marker. Parent is the post being pinned.
type Marker struct {
	URI       string
	CID       string
	Parent    atproto.StrongRef
	CreatedAt string
}

type recordTypeTag struct {
	Type string `json:"$type"`
}

type postValue struct {
	Text      string    `json:"text"`
	Reply     *ReplyRef `json:"reply,omitempty"`
	CreatedAt string    `json:"createdAt"`
}

// NarrowPost returns the typed post carried by record when its type tag is the
// post collection. Records of any other type, or with undecodable values, are
// reported as not being posts.
func NarrowPost(record atproto.Record) (Post, bool) {
	var tag recordTypeTag
	if decodingError := json.Unmarshal(record.Value, &tag); decodingError != nil {
		return Post{}, false
	}
	if tag.Type != PostCollection {
		return Post{}, false
	}

	var value postValue
	if decodingError := json.Unmarshal(record.Value, &value); decodingError != nil {
		return Post{}, false
	}

	return Post{
		URI:       record.URI,
		CID:       record.CID,
		Text:      value.Text,
		Reply:     value.Reply,
		CreatedAt: value.CreatedAt,
	}, true
}

// IsPinMarker reports whether the post is a reply consisting solely of the pin glyph.
func IsPinMarker(post Post) bool {
	if post.Reply == nil {
		return false
	}
	return trimText(post.Text) == PinGlyph
}

// Classify narrows record to a post and reports whether it is a pin marker.
func Classify(record atproto.Record) (Marker, bool) {
	post, isPost := NarrowPost(record)
	if !isPost || !IsPinMarker(post) {
		return Marker{}, false
	}

	return Marker{
		URI:       post.URI,
		CID:       post.CID,
		Parent:    post.Reply.Parent,
		CreatedAt: post.CreatedAt,
	}, true
}

// Filter returns the markers found in records, keeping their relative order.
func Filter(records []atproto.Record) []Marker {
	markers := make([]Marker, 0, len(records))
	for _, record := range records {
		if marker, isMarker := Classify(record); isMarker {
			markers = append(markers, marker)
		}
	}
	return markers
}

// SortByCreation orders markers ascending by their ISO-8601 creation timestamp.
// Markers with equal timestamps keep their fetch order.
func SortByCreation(markers []Marker) {
	slices.SortStableFunc(markers, func(first Marker, second Marker) int {
		return strings.Compare(first.CreatedAt, second.CreatedAt)
	})
}

func trimText(text string) string {
	return strings.TrimFunc(text, func(character rune) bool {
		return unicode.IsSpace(character) || character == byteOrderMarkRuneConstant
	})
}
