package atproto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"golang.org/x/oauth2"

	"github.com/temirov/pin2saved/internal/identity"
)

const (
	createSessionMethodConstant        = "com.atproto.server.createSession"
	createSessionOperationNameConstant = OperationName("CreateSession")
	atprotoProxyHeaderConstant         = "atproto-proxy"
	passwordFieldNameConstant          = "password"
	accessTokenFieldNameConstant       = "access_token"
	sessionMismatchTemplateConstant    = "session belongs to %s, expected %s"
	accessTokenMissingMessageConstant  = "session response missing access token"
)

var errServiceEndpointMissing = InvalidInputError{FieldName: serviceEndpointFieldNameConstant, Message: requiredValueMessageConstant}

// SessionSettings configures the HTTP behaviour of opened sessions. HTTPClient,
// when set, is the base client whose transport gets wrapped with the bearer token.
type SessionSettings struct {
	RequestTimeout time.Duration
	AppViewProxy   string
	HTTPClient     *http.Client
}

// Session describes an authenticated actor bound to its data-hosting endpoint.
type Session struct {
	DID             syntax.DID
	Handle          string
	ServiceEndpoint string
}

// PasswordAuthenticator opens sessions with com.atproto.server.createSession.
// Password should be an app password.
type PasswordAuthenticator struct {
	Password string
	Settings SessionSettings
}

// OpenSession logs in on the actor's data-hosting endpoint and returns a repository client bound to the session.
func (authenticator PasswordAuthenticator) OpenSession(executionContext context.Context, actor identity.Identity) (*RepositoryClient, error) {
	if len(authenticator.Password) == 0 {
		return nil, InvalidInputError{FieldName: passwordFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if actor.ServiceEndpoint == nil {
		return nil, errServiceEndpointMissing
	}

	loginClient, clientError := NewClient(actor.ServiceEndpoint.String(), authenticator.Settings.baseHTTPClient())
	if clientError != nil {
		return nil, clientError
	}

	payload, encodingError := encodePayload(createSessionOperationNameConstant, map[string]string{
		"identifier": actor.DID.String(),
		"password":   authenticator.Password,
	})
	if encodingError != nil {
		return nil, encodingError
	}

	var response struct {
		AccessJwt string `json:"accessJwt"`
		DID       string `json:"did"`
		Handle    string `json:"handle"`
	}
	if procedureError := loginClient.procedure(executionContext, createSessionMethodConstant, payload, &response); procedureError != nil {
		return nil, wrapOperationError(createSessionOperationNameConstant, procedureError)
	}

	if len(response.AccessJwt) == 0 {
		return nil, OperationError{Operation: createSessionOperationNameConstant, Cause: errors.New(accessTokenMissingMessageConstant)}
	}
	if response.DID != actor.DID.String() {
		return nil, OperationError{Operation: createSessionOperationNameConstant, Cause: fmt.Errorf(sessionMismatchTemplateConstant, response.DID, actor.DID)}
	}

	session := Session{DID: actor.DID, Handle: response.Handle, ServiceEndpoint: actor.ServiceEndpoint.String()}
	return newRepositoryClient(executionContext, session, response.AccessJwt, authenticator.Settings)
}

// TokenAuthenticator opens sessions from an access token issued by an
// externally managed authorization flow.
type TokenAuthenticator struct {
	AccessToken string
	Settings    SessionSettings
}

// OpenSession binds the access token to the actor's data-hosting endpoint.
func (authenticator TokenAuthenticator) OpenSession(executionContext context.Context, actor identity.Identity) (*RepositoryClient, error) {
	accessToken := strings.TrimSpace(authenticator.AccessToken)
	if len(accessToken) == 0 {
		return nil, InvalidInputError{FieldName: accessTokenFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if actor.ServiceEndpoint == nil {
		return nil, errServiceEndpointMissing
	}

	session := Session{DID: actor.DID, Handle: actor.Handle, ServiceEndpoint: actor.ServiceEndpoint.String()}
	return newRepositoryClient(executionContext, session, accessToken, authenticator.Settings)
}

func newRepositoryClient(executionContext context.Context, session Session, accessToken string, settings SessionSettings) (*RepositoryClient, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken})
	baseContext := context.WithValue(executionContext, oauth2.HTTPClient, settings.baseHTTPClient())
	authenticatedHTTPClient := oauth2.NewClient(baseContext, tokenSource)
	authenticatedHTTPClient.Timeout = settings.requestTimeout()

	client, clientError := NewClient(session.ServiceEndpoint, authenticatedHTTPClient)
	if clientError != nil {
		return nil, clientError
	}

	return &RepositoryClient{client: client, session: session, appViewProxy: strings.TrimSpace(settings.AppViewProxy)}, nil
}

func (settings SessionSettings) requestTimeout() time.Duration {
	if settings.RequestTimeout <= 0 {
		return defaultRequestTimeoutConstant
	}
	return settings.RequestTimeout
}

func (settings SessionSettings) baseHTTPClient() *http.Client {
	if settings.HTTPClient != nil {
		return settings.HTTPClient
	}
	return &http.Client{Timeout: settings.requestTimeout()}
}
