package atproto_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/stretchr/testify/require"

	"github.com/temirov/pin2saved/internal/atproto"
	"github.com/temirov/pin2saved/internal/identity"
)

const (
	actorDIDConstant            = "did:plc:abc"
	actorHandleConstant         = "alice.example"
	accessJWTConstant           = "access-jwt"
	appPasswordConstant         = "abcd-efgh-ijkl-mnop"
	appViewProxyConstant        = "did:web:api.bsky.app#bsky_appview"
	markerURIConstant           = "at://did:plc:abc/app.bsky.feed.post/3kmarker"
	subjectURIConstant          = "at://did:plc:bob/app.bsky.feed.post/3ksubject"
	subjectCIDConstant          = "bafysubject"
	authorizationHeaderConstant = "Authorization"
	proxyHeaderConstant         = "atproto-proxy"
)

type capturedRequest struct {
	Method  string
	Path    string
	Query   url.Values
	Headers http.Header
	Body    map[string]any
}

type xrpcServer struct {
	server    *httptest.Server
	mutex     sync.Mutex
	requests  []capturedRequest
	responses map[string]func(writer http.ResponseWriter)
}

func newXRPCServer(testInstance *testing.T, responses map[string]func(writer http.ResponseWriter)) *xrpcServer {
	testInstance.Helper()
	fake := &xrpcServer{responses: responses}
	fake.server = httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		captured := capturedRequest{Method: request.Method, Path: request.URL.Path, Query: request.URL.Query(), Headers: request.Header.Clone()}
		if request.Body != nil {
			body, _ := io.ReadAll(request.Body)
			if len(body) > 0 {
				_ = json.Unmarshal(body, &captured.Body)
			}
		}

		fake.mutex.Lock()
		fake.requests = append(fake.requests, captured)
		fake.mutex.Unlock()

		respond, configured := fake.responses[request.URL.Path]
		if !configured {
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		respond(writer)
	}))
	testInstance.Cleanup(fake.server.Close)
	return fake
}

func (fake *xrpcServer) recorded() []capturedRequest {
	fake.mutex.Lock()
	defer fake.mutex.Unlock()
	return append([]capturedRequest(nil), fake.requests...)
}

func jsonResponse(statusCode int, body string) func(writer http.ResponseWriter) {
	return func(writer http.ResponseWriter) {
		writer.Header().Set("Content-Type", "application/json")
		writer.WriteHeader(statusCode)
		_, _ = io.WriteString(writer, body)
	}
}

func actorIdentity(testInstance *testing.T, endpoint string) identity.Identity {
	testInstance.Helper()
	serviceEndpoint, parseError := url.Parse(endpoint)
	require.NoError(testInstance, parseError)
	return identity.Identity{Identifier: actorHandleConstant, DID: syntax.DID(actorDIDConstant), Handle: actorHandleConstant, ServiceEndpoint: serviceEndpoint}
}

func openTokenSession(testInstance *testing.T, fake *xrpcServer, appViewProxy string) *atproto.RepositoryClient {
	testInstance.Helper()
	repositoryClient, openError := atproto.TokenAuthenticator{
		AccessToken: accessJWTConstant,
		Settings:    atproto.SessionSettings{AppViewProxy: appViewProxy, HTTPClient: fake.server.Client()},
	}.OpenSession(context.Background(), actorIdentity(testInstance, fake.server.URL))
	require.NoError(testInstance, openError)
	return repositoryClient
}

func TestPasswordAuthenticatorOpensSession(testInstance *testing.T) {
	fake := newXRPCServer(testInstance, map[string]func(writer http.ResponseWriter){
		"/xrpc/com.atproto.server.createSession": jsonResponse(http.StatusOK, `{"accessJwt":"access-jwt","refreshJwt":"refresh","did":"did:plc:abc","handle":"alice.example"}`),
		"/xrpc/com.atproto.repo.listRecords":     jsonResponse(http.StatusOK, `{"records":[]}`),
	})

	repositoryClient, openError := atproto.PasswordAuthenticator{
		Password: appPasswordConstant,
		Settings: atproto.SessionSettings{HTTPClient: fake.server.Client()},
	}.OpenSession(context.Background(), actorIdentity(testInstance, fake.server.URL))
	require.NoError(testInstance, openError)
	require.Equal(testInstance, atproto.Session{DID: actorDIDConstant, Handle: actorHandleConstant, ServiceEndpoint: fake.server.URL}, repositoryClient.Session())

	_, listError := repositoryClient.ListRecords(context.Background(), atproto.ListRecordsRequest{Repository: actorDIDConstant, Collection: "app.bsky.feed.post"})
	require.NoError(testInstance, listError)

	requests := fake.recorded()
	require.Len(testInstance, requests, 2)
	require.Equal(testInstance, http.MethodPost, requests[0].Method)
	require.Equal(testInstance, map[string]any{"identifier": actorDIDConstant, "password": appPasswordConstant}, requests[0].Body)
	require.Empty(testInstance, requests[0].Headers.Get(authorizationHeaderConstant))
	require.Equal(testInstance, "Bearer "+accessJWTConstant, requests[1].Headers.Get(authorizationHeaderConstant))
}

func TestPasswordAuthenticatorRejectsForeignSession(testInstance *testing.T) {
	testCases := []struct {
		name     string
		response func(writer http.ResponseWriter)
	}{
		{name: "other_actor", response: jsonResponse(http.StatusOK, `{"accessJwt":"access-jwt","did":"did:plc:other","handle":"mallory.example"}`)},
		{name: "missing_token", response: jsonResponse(http.StatusOK, `{"did":"did:plc:abc"}`)},
		{name: "unauthorized", response: jsonResponse(http.StatusUnauthorized, `{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`)},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fake := newXRPCServer(testInstance, map[string]func(writer http.ResponseWriter){
				"/xrpc/com.atproto.server.createSession": testCase.response,
			})

			_, openError := atproto.PasswordAuthenticator{
				Password: appPasswordConstant,
				Settings: atproto.SessionSettings{HTTPClient: fake.server.Client()},
			}.OpenSession(context.Background(), actorIdentity(testInstance, fake.server.URL))

			var operationError atproto.OperationError
			require.ErrorAs(testInstance, openError, &operationError)
			require.Equal(testInstance, atproto.OperationName("CreateSession"), operationError.Operation)
		})
	}
}

func TestAuthenticatorsRequireCredentials(testInstance *testing.T) {
	actor := actorIdentity(testInstance, "https://pds.example")

	_, passwordError := atproto.PasswordAuthenticator{}.OpenSession(context.Background(), actor)
	require.ErrorAs(testInstance, passwordError, &atproto.InvalidInputError{})

	_, tokenError := atproto.TokenAuthenticator{AccessToken: "  "}.OpenSession(context.Background(), actor)
	require.ErrorAs(testInstance, tokenError, &atproto.InvalidInputError{})

	_, endpointError := atproto.TokenAuthenticator{AccessToken: accessJWTConstant}.OpenSession(context.Background(), identity.Identity{DID: actorDIDConstant})
	require.ErrorAs(testInstance, endpointError, &atproto.InvalidInputError{})
}

func TestRepositoryClientListRecords(testInstance *testing.T) {
	fake := newXRPCServer(testInstance, map[string]func(writer http.ResponseWriter){
		"/xrpc/com.atproto.repo.listRecords": jsonResponse(http.StatusOK, `{"cursor":"3kcursor","records":[{"uri":"at://did:plc:abc/app.bsky.feed.post/3kmarker","cid":"bafymarker","value":{"$type":"app.bsky.feed.post","text":"📌"}}]}`),
	})
	repositoryClient := openTokenSession(testInstance, fake, appViewProxyConstant)

	page, listError := repositoryClient.ListRecords(context.Background(), atproto.ListRecordsRequest{
		Repository: actorDIDConstant,
		Collection: "app.bsky.feed.post",
		Cursor:     "3kprevious",
		Limit:      100,
	})
	require.NoError(testInstance, listError)
	require.Equal(testInstance, "3kcursor", page.Cursor)
	require.Len(testInstance, page.Records, 1)
	require.Equal(testInstance, markerURIConstant, page.Records[0].URI)
	require.JSONEq(testInstance, `{"$type":"app.bsky.feed.post","text":"📌"}`, string(page.Records[0].Value))

	requests := fake.recorded()
	require.Len(testInstance, requests, 1)
	require.Equal(testInstance, http.MethodGet, requests[0].Method)
	require.Equal(testInstance, url.Values{
		"repo":       []string{actorDIDConstant},
		"collection": []string{"app.bsky.feed.post"},
		"cursor":     []string{"3kprevious"},
		"limit":      []string{"100"},
	}, requests[0].Query)
	require.Empty(testInstance, requests[0].Headers.Get(proxyHeaderConstant))
}

func TestRepositoryClientListRecordsValidatesRequest(testInstance *testing.T) {
	fake := newXRPCServer(testInstance, nil)
	repositoryClient := openTokenSession(testInstance, fake, "")

	_, listError := repositoryClient.ListRecords(context.Background(), atproto.ListRecordsRequest{Collection: "app.bsky.feed.post"})
	require.ErrorAs(testInstance, listError, &atproto.InvalidInputError{})
	require.Empty(testInstance, fake.recorded())
}

func TestRepositoryClientCreateBookmark(testInstance *testing.T) {
	testCases := []struct {
		name          string
		appViewProxy  string
		expectedProxy string
	}{
		{name: "proxied", appViewProxy: appViewProxyConstant, expectedProxy: appViewProxyConstant},
		{name: "direct", appViewProxy: "", expectedProxy: ""},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fake := newXRPCServer(testInstance, map[string]func(writer http.ResponseWriter){
				"/xrpc/app.bsky.bookmark.createBookmark": jsonResponse(http.StatusOK, ""),
				"/xrpc/com.atproto.repo.listRecords":     jsonResponse(http.StatusOK, `{"records":[]}`),
			})
			repositoryClient := openTokenSession(testInstance, fake, testCase.appViewProxy)

			require.NoError(testInstance, repositoryClient.CreateBookmark(context.Background(), atproto.StrongRef{URI: subjectURIConstant, CID: subjectCIDConstant}))
			_, listError := repositoryClient.ListRecords(context.Background(), atproto.ListRecordsRequest{Repository: actorDIDConstant, Collection: "app.bsky.feed.post"})
			require.NoError(testInstance, listError)

			requests := fake.recorded()
			require.Len(testInstance, requests, 2)
			require.Equal(testInstance, http.MethodPost, requests[0].Method)
			require.Equal(testInstance, map[string]any{"uri": subjectURIConstant, "cid": subjectCIDConstant}, requests[0].Body)
			require.Equal(testInstance, testCase.expectedProxy, requests[0].Headers.Get(proxyHeaderConstant))
			require.Equal(testInstance, "Bearer "+accessJWTConstant, requests[0].Headers.Get(authorizationHeaderConstant))
			require.Empty(testInstance, requests[1].Headers.Get(proxyHeaderConstant))
		})
	}
}

func TestRepositoryClientCreateBookmarkValidatesSubject(testInstance *testing.T) {
	fake := newXRPCServer(testInstance, nil)
	repositoryClient := openTokenSession(testInstance, fake, appViewProxyConstant)

	require.ErrorAs(testInstance, repositoryClient.CreateBookmark(context.Background(), atproto.StrongRef{CID: subjectCIDConstant}), &atproto.InvalidInputError{})
	require.ErrorAs(testInstance, repositoryClient.CreateBookmark(context.Background(), atproto.StrongRef{URI: subjectURIConstant}), &atproto.InvalidInputError{})
	require.Empty(testInstance, fake.recorded())
}

func TestRepositoryClientDeleteRecord(testInstance *testing.T) {
	fake := newXRPCServer(testInstance, map[string]func(writer http.ResponseWriter){
		"/xrpc/com.atproto.repo.deleteRecord": jsonResponse(http.StatusOK, `{}`),
	})
	repositoryClient := openTokenSession(testInstance, fake, appViewProxyConstant)

	require.NoError(testInstance, repositoryClient.DeleteRecord(context.Background(), markerURIConstant))

	requests := fake.recorded()
	require.Len(testInstance, requests, 1)
	require.Equal(testInstance, map[string]any{"repo": actorDIDConstant, "collection": "app.bsky.feed.post", "rkey": "3kmarker"}, requests[0].Body)
	require.Empty(testInstance, requests[0].Headers.Get(proxyHeaderConstant))

	require.ErrorAs(testInstance, repositoryClient.DeleteRecord(context.Background(), "at://did:plc:abc/app.bsky.feed.post"), &atproto.InvalidInputError{})
	require.ErrorAs(testInstance, repositoryClient.DeleteRecord(context.Background(), "not a uri"), &atproto.InvalidInputError{})
	require.Len(testInstance, fake.recorded(), 1)
}

func TestRepositoryClientDecodesXRPCErrors(testInstance *testing.T) {
	testCases := []struct {
		name          string
		response      func(writer http.ResponseWriter)
		expectedError atproto.XRPCError
	}{
		{
			name:          "structured",
			response:      jsonResponse(http.StatusBadRequest, `{"error":"InvalidRequest","message":"Could not locate record"}`),
			expectedError: atproto.XRPCError{StatusCode: http.StatusBadRequest, Name: "InvalidRequest", Message: "Could not locate record"},
		},
		{
			name:          "plain_text",
			response:      jsonResponse(http.StatusBadGateway, " upstream unavailable \n"),
			expectedError: atproto.XRPCError{StatusCode: http.StatusBadGateway, Message: "upstream unavailable"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			fake := newXRPCServer(testInstance, map[string]func(writer http.ResponseWriter){
				"/xrpc/com.atproto.repo.deleteRecord": testCase.response,
			})
			repositoryClient := openTokenSession(testInstance, fake, "")

			deleteError := repositoryClient.DeleteRecord(context.Background(), markerURIConstant)

			var operationError atproto.OperationError
			require.ErrorAs(testInstance, deleteError, &operationError)
			require.Equal(testInstance, atproto.OperationName("DeleteRecord"), operationError.Operation)

			var xrpcError atproto.XRPCError
			require.ErrorAs(testInstance, deleteError, &xrpcError)
			require.Equal(testInstance, testCase.expectedError, xrpcError)
		})
	}
}

func TestRepositoryClientReportsUndecodableResponses(testInstance *testing.T) {
	fake := newXRPCServer(testInstance, map[string]func(writer http.ResponseWriter){
		"/xrpc/com.atproto.repo.listRecords": jsonResponse(http.StatusOK, `{"records":"nope"}`),
	})
	repositoryClient := openTokenSession(testInstance, fake, "")

	_, listError := repositoryClient.ListRecords(context.Background(), atproto.ListRecordsRequest{Repository: actorDIDConstant, Collection: "app.bsky.feed.post"})
	require.ErrorAs(testInstance, listError, &atproto.ResponseDecodingError{})
}
