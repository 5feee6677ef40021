package atproto

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

const (
	resolveHandleMethodConstant          = "com.atproto.identity.resolveHandle"
	handleParameterNameConstant          = "handle"
	handleFieldNameConstant              = "handle"
	didFieldNameConstant                 = "did"
	plcDirectoryFieldNameConstant        = "plc_directory"
	didMethodPLCConstant                 = "plc"
	didMethodWebConstant                 = "web"
	didWebDocumentPathConstant           = "/.well-known/did.json"
	didWebEncodedPortSeparatorConstant   = "%3A"
	didWebPortSeparatorConstant          = ":"
	unsupportedDIDMethodTemplateConstant = "unsupported DID method %q"
	documentStatusErrorTemplateConstant  = "DID document request returned status %d"
	resolveHandleOperationNameConstant   = OperationName("ResolveHandle")
	fetchDocumentOperationNameConstant   = OperationName("FetchDocument")
	resolvedDIDMissingMessageConstant    = "resolved DID missing from response"
)

// IdentityClient resolves handles and fetches DID documents.
type IdentityClient struct {
	handleResolver    *Client
	plcDirectory      *url.URL
	httpClient        *http.Client
	webDocumentScheme string
}

// NewIdentityClient constructs an identity client. handleResolverEndpoint hosts
// com.atproto.identity.resolveHandle and plcDirectoryEndpoint serves did:plc documents.
func NewIdentityClient(handleResolverEndpoint string, plcDirectoryEndpoint string, httpClient *http.Client) (*IdentityClient, error) {
	handleResolver, resolverError := NewClient(handleResolverEndpoint, httpClient)
	if resolverError != nil {
		return nil, resolverError
	}

	plcDirectory, directoryError := ParseServiceEndpoint(plcDirectoryEndpoint)
	if directoryError != nil {
		return nil, InvalidInputError{FieldName: plcDirectoryFieldNameConstant, Message: directoryError.Error()}
	}

	return &IdentityClient{
		handleResolver:    handleResolver,
		plcDirectory:      plcDirectory,
		httpClient:        handleResolver.httpClient,
		webDocumentScheme: httpsSchemeConstant,
	}, nil
}

// ResolveHandle exchanges a handle for the DID it currently points to.
func (identityClient *IdentityClient) ResolveHandle(executionContext context.Context, handle string) (string, error) {
	trimmedHandle := strings.TrimSpace(handle)
	if len(trimmedHandle) == 0 {
		return "", InvalidInputError{FieldName: handleFieldNameConstant, Message: requiredValueMessageConstant}
	}

	var response struct {
		DID string `json:"did"`
	}

	parameters := url.Values{}
	parameters.Set(handleParameterNameConstant, trimmedHandle)

	if queryError := identityClient.handleResolver.query(executionContext, resolveHandleMethodConstant, parameters, &response); queryError != nil {
		return "", wrapOperationError(resolveHandleOperationNameConstant, queryError)
	}

	if len(strings.TrimSpace(response.DID)) == 0 {
		return "", ResponseDecodingError{Operation: resolveHandleOperationNameConstant, Cause: errors.New(resolvedDIDMissingMessageConstant)}
	}

	return response.DID, nil
}

// FetchDocument retrieves the raw DID document for did. A document the
// directory does not know yields a nil document and a nil error.
func (identityClient *IdentityClient) FetchDocument(executionContext context.Context, did syntax.DID) (json.RawMessage, error) {
	documentURL, urlError := identityClient.documentURL(did)
	if urlError != nil {
		return nil, urlError
	}

	request, requestError := http.NewRequestWithContext(executionContext, http.MethodGet, documentURL, nil)
	if requestError != nil {
		return nil, OperationError{Operation: fetchDocumentOperationNameConstant, Cause: fmt.Errorf(requestCreationErrorTemplate, requestError)}
	}
	request.Header.Set(acceptHeaderConstant, jsonContentTypeConstant)

	response, sendError := identityClient.httpClient.Do(request)
	if sendError != nil {
		return nil, OperationError{Operation: fetchDocumentOperationNameConstant, Cause: fmt.Errorf(requestSendErrorTemplate, sendError)}
	}
	defer response.Body.Close()

	if response.StatusCode == http.StatusNotFound || response.StatusCode == http.StatusGone {
		return nil, nil
	}

	responseBody, readError := io.ReadAll(response.Body)
	if readError != nil {
		return nil, OperationError{Operation: fetchDocumentOperationNameConstant, Cause: fmt.Errorf(responseReadErrorTemplate, readError)}
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return nil, OperationError{Operation: fetchDocumentOperationNameConstant, Cause: fmt.Errorf(documentStatusErrorTemplateConstant, response.StatusCode)}
	}

	var document map[string]any
	if decodingError := json.Unmarshal(responseBody, &document); decodingError != nil {
		return nil, ResponseDecodingError{Operation: fetchDocumentOperationNameConstant, Cause: decodingError}
	}

	return json.RawMessage(responseBody), nil
}

func (identityClient *IdentityClient) documentURL(did syntax.DID) (string, error) {
	switch did.Method() {
	case didMethodPLCConstant:
		documentURL := *identityClient.plcDirectory
		documentURL.Path = strings.TrimRight(documentURL.Path, "/") + "/" + did.String()
		return documentURL.String(), nil
	case didMethodWebConstant:
		host := strings.ReplaceAll(did.Identifier(), didWebEncodedPortSeparatorConstant, didWebPortSeparatorConstant)
		documentURL := url.URL{Scheme: identityClient.webDocumentScheme, Host: host, Path: didWebDocumentPathConstant}
		return documentURL.String(), nil
	default:
		return "", InvalidInputError{FieldName: didFieldNameConstant, Message: fmt.Sprintf(unsupportedDIDMethodTemplateConstant, did.Method())}
	}
}
