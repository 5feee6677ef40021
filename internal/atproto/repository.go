package atproto

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

const (
	listRecordsMethodConstant           = "com.atproto.repo.listRecords"
	deleteRecordMethodConstant          = "com.atproto.repo.deleteRecord"
	createBookmarkMethodConstant        = "app.bsky.bookmark.createBookmark"
	repoParameterNameConstant           = "repo"
	collectionParameterNameConstant     = "collection"
	cursorParameterNameConstant         = "cursor"
	limitParameterNameConstant          = "limit"
	repositoryFieldNameConstant         = "repository"
	collectionFieldNameConstant         = "collection"
	uriFieldNameConstant                = "uri"
	cidFieldNameConstant                = "cid"
	recordKeyMissingMessageConstant     = "record key required"
	listRecordsOperationNameConstant    = OperationName("ListRecords")
	createBookmarkOperationNameConstant = OperationName("CreateBookmark")
	deleteRecordOperationNameConstant   = OperationName("DeleteRecord")
)

// RepositoryClient performs repository reads and mutations within one session.
type RepositoryClient struct {
	client       *Client
	session      Session
	appViewProxy string
}

// Session returns the session the client is bound to.
func (repositoryClient *RepositoryClient) Session() Session {
	return repositoryClient.session
}

// ListRecords fetches one page of records from a repository collection.
func (repositoryClient *RepositoryClient) ListRecords(executionContext context.Context, request ListRecordsRequest) (RecordPage, error) {
	repository := strings.TrimSpace(request.Repository)
	if len(repository) == 0 {
		return RecordPage{}, InvalidInputError{FieldName: repositoryFieldNameConstant, Message: requiredValueMessageConstant}
	}
	collection := strings.TrimSpace(request.Collection)
	if len(collection) == 0 {
		return RecordPage{}, InvalidInputError{FieldName: collectionFieldNameConstant, Message: requiredValueMessageConstant}
	}

	parameters := url.Values{}
	parameters.Set(repoParameterNameConstant, repository)
	parameters.Set(collectionParameterNameConstant, collection)
	if request.Limit > 0 {
		parameters.Set(limitParameterNameConstant, strconv.Itoa(request.Limit))
	}
	if len(request.Cursor) > 0 {
		parameters.Set(cursorParameterNameConstant, request.Cursor)
	}

	var response struct {
		Cursor  string   `json:"cursor"`
		Records []Record `json:"records"`
	}
	if queryError := repositoryClient.client.query(executionContext, listRecordsMethodConstant, parameters, &response); queryError != nil {
		return RecordPage{}, wrapOperationError(listRecordsOperationNameConstant, queryError)
	}

	return RecordPage{Cursor: response.Cursor, Records: response.Records}, nil
}

// CreateBookmark saves subject as a bookmark of the session actor. The request
// is proxied to the configured AppView when one is set.
func (repositoryClient *RepositoryClient) CreateBookmark(executionContext context.Context, subject StrongRef) error {
	if len(strings.TrimSpace(subject.URI)) == 0 {
		return InvalidInputError{FieldName: uriFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(subject.CID)) == 0 {
		return InvalidInputError{FieldName: cidFieldNameConstant, Message: requiredValueMessageConstant}
	}

	payload, encodingError := encodePayload(createBookmarkOperationNameConstant, subject)
	if encodingError != nil {
		return encodingError
	}

	proxiedClient := *repositoryClient.client
	proxiedClient.headers = repositoryClient.client.headers.Clone()
	if len(repositoryClient.appViewProxy) > 0 {
		proxiedClient.headers.Set(atprotoProxyHeaderConstant, repositoryClient.appViewProxy)
	}

	if procedureError := proxiedClient.procedure(executionContext, createBookmarkMethodConstant, payload, nil); procedureError != nil {
		return wrapOperationError(createBookmarkOperationNameConstant, procedureError)
	}
	return nil
}

// DeleteRecord removes the record addressed by the AT-URI.
func (repositoryClient *RepositoryClient) DeleteRecord(executionContext context.Context, uri string) error {
	recordURI, parseError := syntax.ParseATURI(strings.TrimSpace(uri))
	if parseError != nil {
		return InvalidInputError{FieldName: uriFieldNameConstant, Message: parseError.Error()}
	}
	if len(recordURI.RecordKey().String()) == 0 {
		return InvalidInputError{FieldName: uriFieldNameConstant, Message: recordKeyMissingMessageConstant}
	}

	payload, encodingError := encodePayload(deleteRecordOperationNameConstant, map[string]string{
		"repo":       recordURI.Authority().String(),
		"collection": recordURI.Collection().String(),
		"rkey":       recordURI.RecordKey().String(),
	})
	if encodingError != nil {
		return encodingError
	}

	if procedureError := repositoryClient.client.procedure(executionContext, deleteRecordMethodConstant, payload, nil); procedureError != nil {
		return wrapOperationError(deleteRecordOperationNameConstant, procedureError)
	}
	return nil
}
