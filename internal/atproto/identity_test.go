package atproto

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/stretchr/testify/require"
)

const (
	testDocumentConstant = `{"id":"did:plc:abc","service":[{"id":"#atproto_pds","type":"AtprotoPersonalDataServer","serviceEndpoint":"https://pds.example"}]}`
)

func newIdentityTestServer(testInstance *testing.T, handler http.HandlerFunc) (*httptest.Server, *IdentityClient) {
	testInstance.Helper()
	server := httptest.NewServer(handler)
	testInstance.Cleanup(server.Close)

	identityClient, creationError := NewIdentityClient(server.URL, server.URL+"/directory", server.Client())
	require.NoError(testInstance, creationError)
	return server, identityClient
}

func TestIdentityClientResolveHandle(testInstance *testing.T) {
	var requestedPath string
	var requestedHandle string
	_, identityClient := newIdentityTestServer(testInstance, func(writer http.ResponseWriter, request *http.Request) {
		requestedPath = request.URL.Path
		requestedHandle = request.URL.Query().Get("handle")
		_, _ = io.WriteString(writer, `{"did":"did:plc:abc"}`)
	})

	did, resolveError := identityClient.ResolveHandle(context.Background(), " alice.example ")
	require.NoError(testInstance, resolveError)
	require.Equal(testInstance, "did:plc:abc", did)
	require.Equal(testInstance, "/xrpc/com.atproto.identity.resolveHandle", requestedPath)
	require.Equal(testInstance, "alice.example", requestedHandle)
}

func TestIdentityClientResolveHandleFailures(testInstance *testing.T) {
	testCases := []struct {
		name          string
		statusCode    int
		body          string
		expectedError any
	}{
		{name: "unknown_handle", statusCode: http.StatusBadRequest, body: `{"error":"InvalidRequest","message":"Unable to resolve handle"}`, expectedError: &OperationError{}},
		{name: "empty_did", statusCode: http.StatusOK, body: `{"did":""}`, expectedError: &ResponseDecodingError{}},
		{name: "malformed_body", statusCode: http.StatusOK, body: `{"did":`, expectedError: &ResponseDecodingError{}},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			_, identityClient := newIdentityTestServer(testInstance, func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(testCase.statusCode)
				_, _ = io.WriteString(writer, testCase.body)
			})

			_, resolveError := identityClient.ResolveHandle(context.Background(), "alice.example")
			require.ErrorAs(testInstance, resolveError, testCase.expectedError)
		})
	}

	_, identityClient := newIdentityTestServer(testInstance, func(writer http.ResponseWriter, request *http.Request) {})
	_, emptyError := identityClient.ResolveHandle(context.Background(), " ")
	require.ErrorAs(testInstance, emptyError, &InvalidInputError{})
}

func TestIdentityClientFetchDocument(testInstance *testing.T) {
	testCases := []struct {
		name             string
		did              syntax.DID
		statusCode       int
		body             string
		expectedPath     string
		expectedDocument string
		expectedError    any
	}{
		{
			name:             "plc_document",
			did:              "did:plc:abc",
			statusCode:       http.StatusOK,
			body:             testDocumentConstant,
			expectedPath:     "/directory/did:plc:abc",
			expectedDocument: testDocumentConstant,
		},
		{
			name:         "plc_document_missing",
			did:          "did:plc:abc",
			statusCode:   http.StatusNotFound,
			body:         `{"message":"DID not registered"}`,
			expectedPath: "/directory/did:plc:abc",
		},
		{
			name:         "plc_document_tombstoned",
			did:          "did:plc:abc",
			statusCode:   http.StatusGone,
			expectedPath: "/directory/did:plc:abc",
		},
		{
			name:          "directory_failure",
			did:           "did:plc:abc",
			statusCode:    http.StatusInternalServerError,
			expectedPath:  "/directory/did:plc:abc",
			expectedError: &OperationError{},
		},
		{
			name:          "malformed_document",
			did:           "did:plc:abc",
			statusCode:    http.StatusOK,
			body:          `[1,2,3]`,
			expectedPath:  "/directory/did:plc:abc",
			expectedError: &ResponseDecodingError{},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			var requestedPath string
			_, identityClient := newIdentityTestServer(testInstance, func(writer http.ResponseWriter, request *http.Request) {
				requestedPath = request.URL.Path
				writer.WriteHeader(testCase.statusCode)
				_, _ = io.WriteString(writer, testCase.body)
			})

			document, fetchError := identityClient.FetchDocument(context.Background(), testCase.did)
			require.Equal(testInstance, testCase.expectedPath, requestedPath)
			if testCase.expectedError != nil {
				require.ErrorAs(testInstance, fetchError, testCase.expectedError)
				return
			}
			require.NoError(testInstance, fetchError)
			if len(testCase.expectedDocument) == 0 {
				require.Nil(testInstance, document)
				return
			}
			require.JSONEq(testInstance, testCase.expectedDocument, string(document))
		})
	}
}

func TestIdentityClientFetchesWebDocuments(testInstance *testing.T) {
	var requestedPath string
	server, identityClient := newIdentityTestServer(testInstance, func(writer http.ResponseWriter, request *http.Request) {
		requestedPath = request.URL.Path
		_, _ = io.WriteString(writer, testDocumentConstant)
	})
	identityClient.webDocumentScheme = httpSchemeConstant

	serverURL, parseError := url.Parse(server.URL)
	require.NoError(testInstance, parseError)
	did := syntax.DID("did:web:" + url.PathEscape(serverURL.Hostname()) + "%3A" + serverURL.Port())

	document, fetchError := identityClient.FetchDocument(context.Background(), did)
	require.NoError(testInstance, fetchError)
	require.JSONEq(testInstance, testDocumentConstant, string(document))
	require.Equal(testInstance, "/.well-known/did.json", requestedPath)
}

func TestIdentityClientRejectsUnsupportedMethods(testInstance *testing.T) {
	_, identityClient := newIdentityTestServer(testInstance, func(writer http.ResponseWriter, request *http.Request) {})

	_, fetchError := identityClient.FetchDocument(context.Background(), syntax.DID("did:key:z6Mk"))
	require.ErrorAs(testInstance, fetchError, &InvalidInputError{})
}

func TestNewIdentityClientValidatesEndpoints(testInstance *testing.T) {
	_, resolverError := NewIdentityClient("bsky.social", "https://plc.directory", nil)
	require.ErrorAs(testInstance, resolverError, &InvalidInputError{})

	_, directoryError := NewIdentityClient("https://bsky.social", "", nil)
	require.ErrorAs(testInstance, directoryError, &InvalidInputError{})
}
