package atproto

import "encoding/json"

// StrongRef addresses one record version by AT-URI and content hash.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// Record is the generic repository record envelope returned by listRecords.
// Value carries the type tag and the type-specific fields undecoded.
type Record struct {
	URI   string          `json:"uri"`
	CID   string          `json:"cid"`
	Value json.RawMessage `json:"value"`
}

// ListRecordsRequest configures one listRecords page query.
type ListRecordsRequest struct {
	Repository string
	Collection string
	Cursor     string
	Limit      int
}

// RecordPage is one page of records. An empty Cursor marks the last page.
type RecordPage struct {
	Cursor  string
	Records []Record
}
