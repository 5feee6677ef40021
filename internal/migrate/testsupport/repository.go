package testsupport

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/temirov/pin2saved/internal/atproto"
	"github.com/temirov/pin2saved/internal/pins"
)

const (
	recordTypeFieldConstant      = "$type"
	textFieldConstant            = "text"
	replyFieldConstant           = "reply"
	createdAtFieldConstant       = "createdAt"
	rootFieldConstant            = "root"
	parentFieldConstant          = "parent"
	cursorInvalidTemplate        = "invalid cursor %q"
	recordNotFoundTemplate       = "record %s not found"
	repositoryUnsupportedMessage = "repository %s does not match %s"
)

// PostRecord builds a post record. A nil parent produces a top-level post.
func PostRecord(uri string, cid string, text string, createdAt string, parent *atproto.StrongRef) atproto.Record {
	value := map[string]any{
		recordTypeFieldConstant: pins.PostCollection,
		textFieldConstant:       text,
		createdAtFieldConstant:  createdAt,
	}
	if parent != nil {
		value[replyFieldConstant] = map[string]any{
			rootFieldConstant:   *parent,
			parentFieldConstant: *parent,
		}
	}
	encodedValue, _ := json.Marshal(value)
	return atproto.Record{URI: uri, CID: cid, Value: encodedValue}
}

// RepositoryFake is an in-memory repository honoring listRecords pagination.
// Bookmarks are keyed by subject URI and CID, matching the server's
// at-most-one-bookmark-per-subject contract.
type RepositoryFake struct {
	Actor         string
	Records       []atproto.Record
	ListFailures  map[string]int
	ListError     error
	CreateErrors  map[string]error
	DeleteErrors  map[string]error
	OnListFailure func(cursor string, failureCount int)

	ListRequests    []atproto.ListRecordsRequest
	CreatedSubjects []atproto.StrongRef
	DeletedURIs     []string

	bookmarks    map[atproto.StrongRef]struct{}
	failureCount int
	mutex        sync.Mutex
}

// ListRecords serves Records in pages of request.Limit. The cursor is the
// decimal offset of the next record.
func (repository *RepositoryFake) ListRecords(_ context.Context, request atproto.ListRecordsRequest) (atproto.RecordPage, error) {
	repository.mutex.Lock()
	defer repository.mutex.Unlock()

	repository.ListRequests = append(repository.ListRequests, request)

	if len(repository.Actor) > 0 && request.Repository != repository.Actor {
		return atproto.RecordPage{}, fmt.Errorf(repositoryUnsupportedMessage, request.Repository, repository.Actor)
	}

	if remaining, configured := repository.ListFailures[request.Cursor]; configured && remaining != 0 {
		if remaining > 0 {
			repository.ListFailures[request.Cursor] = remaining - 1
		}
		repository.failureCount++
		if repository.OnListFailure != nil {
			repository.OnListFailure(request.Cursor, repository.failureCount)
		}
		return atproto.RecordPage{}, repository.ListError
	}

	offset := 0
	if len(request.Cursor) > 0 {
		parsedOffset, parseError := strconv.Atoi(request.Cursor)
		if parseError != nil {
			return atproto.RecordPage{}, fmt.Errorf(cursorInvalidTemplate, request.Cursor)
		}
		offset = parsedOffset
	}

	limit := request.Limit
	if limit <= 0 {
		limit = len(repository.Records)
	}
	end := min(offset+limit, len(repository.Records))
	offset = min(offset, end)

	page := atproto.RecordPage{Records: slices.Clone(repository.Records[offset:end])}
	if end < len(repository.Records) {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

// CreateBookmark records the call and stores the subject once.
func (repository *RepositoryFake) CreateBookmark(_ context.Context, subject atproto.StrongRef) error {
	repository.mutex.Lock()
	defer repository.mutex.Unlock()

	repository.CreatedSubjects = append(repository.CreatedSubjects, subject)
	if creationError, configured := repository.CreateErrors[subject.URI]; configured {
		return creationError
	}
	if repository.bookmarks == nil {
		repository.bookmarks = map[atproto.StrongRef]struct{}{}
	}
	repository.bookmarks[subject] = struct{}{}
	return nil
}

// DeleteRecord records the call and removes the record when present.
func (repository *RepositoryFake) DeleteRecord(_ context.Context, uri string) error {
	repository.mutex.Lock()
	defer repository.mutex.Unlock()

	repository.DeletedURIs = append(repository.DeletedURIs, uri)
	if deletionError, configured := repository.DeleteErrors[uri]; configured {
		return deletionError
	}

	recordIndex := slices.IndexFunc(repository.Records, func(record atproto.Record) bool { return record.URI == uri })
	if recordIndex < 0 {
		return fmt.Errorf(recordNotFoundTemplate, uri)
	}
	repository.Records = slices.Delete(repository.Records, recordIndex, recordIndex+1)
	return nil
}

// Bookmarks returns the stored bookmarks in no particular order.
func (repository *RepositoryFake) Bookmarks() []atproto.StrongRef {
	repository.mutex.Lock()
	defer repository.mutex.Unlock()

	bookmarks := make([]atproto.StrongRef, 0, len(repository.bookmarks))
	for subject := range repository.bookmarks {
		bookmarks = append(bookmarks, subject)
	}
	return bookmarks
}
