package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bluesky-social/indigo/atproto/syntax"
)

const (
	// PersonalDataServerServiceType is the DID document service type of the data-hosting endpoint.
	PersonalDataServerServiceType = "AtprotoPersonalDataServer"
	// PersonalDataServerServiceID is the fragment identifying the data-hosting service entry.
	PersonalDataServerServiceID = "#atproto_pds"
	// DefaultHandleSuffix is appended to bare account names lacking a domain.
	DefaultHandleSuffix = ".bsky.social"

	durableIdentifierPrefixConstant         = "did:"
	handleDomainSeparatorConstant           = "."
	httpSchemeConstant                      = "http"
	httpsSchemeConstant                     = "https"
	identifierRequiredMessageConstant       = "identifier required"
	handleResolverMissingMessageConstant    = "handle resolver not configured"
	documentFetcherMissingMessageConstant   = "document fetcher not configured"
	aliasResolutionErrorTemplateConstant    = "%w: %s: %w"
	documentResolutionErrorTemplateConstant = "%w: %s: %w"
	invalidDIDErrorTemplateConstant         = "%w: %s: %w"
	conditionErrorTemplateConstant          = "%w: %s"
	endpointMalformedErrorTemplateConstant  = "%w: %s: %q"
)

var (
	// ErrIdentifierInvalid reports an empty or syntactically invalid identifier.
	ErrIdentifierInvalid = errors.New("identifier invalid")
	// ErrAliasUnresolvable reports a handle the resolver could not map to a DID.
	ErrAliasUnresolvable = errors.New("handle could not be resolved")
	// ErrDocumentUnavailable reports a DID document lookup that failed in transport.
	ErrDocumentUnavailable = errors.New("DID document lookup failed")
	// ErrDocumentMissing reports an actor without a DID document.
	ErrDocumentMissing = errors.New("DID document not found")
	// ErrServiceEntryMissing reports a DID document without a personal data server entry.
	ErrServiceEntryMissing = errors.New("DID document has no personal data server service entry")
	// ErrEndpointNotString reports a personal data server entry whose serviceEndpoint is not a string.
	ErrEndpointNotString = errors.New("personal data server serviceEndpoint is not a string")
	// ErrEndpointMalformed reports a personal data server endpoint that is not an absolute http(s) URL.
	ErrEndpointMalformed = errors.New("personal data server serviceEndpoint is not a valid URL")

	errHandleResolverMissing  = errors.New(handleResolverMissingMessageConstant)
	errDocumentFetcherMissing = errors.New(documentFetcherMissingMessageConstant)
)

// HandleResolver maps a handle to the DID it currently points to.
type HandleResolver interface {
	ResolveHandle(executionContext context.Context, handle string) (string, error)
}

// DocumentFetcher retrieves raw DID documents. Unknown DIDs yield a nil document and a nil error.
type DocumentFetcher interface {
	FetchDocument(executionContext context.Context, did syntax.DID) (json.RawMessage, error)
}

// Identity is a resolved actor.
type Identity struct {
	Identifier      string
	DID             syntax.DID
	Handle          string
	ServiceEndpoint *url.URL
}

// Document is the subset of a DID document needed to locate the data-hosting endpoint.
type Document struct {
	ID          string         `json:"id"`
	AlsoKnownAs []string       `json:"alsoKnownAs"`
	Service     []ServiceEntry `json:"service"`
}

// ServiceEntry is one DID document service. ServiceEndpoint stays raw so
// that non-string values can be told apart from missing ones.
type ServiceEntry struct {
	ID              string          `json:"id"`
	Type            string          `json:"type"`
	ServiceEndpoint json.RawMessage `json:"serviceEndpoint"`
}

// ResolverDependencies describes the collaborators used by Resolver.
type ResolverDependencies struct {
	HandleResolver      HandleResolver
	DocumentFetcher     DocumentFetcher
	DefaultHandleSuffix string
}

// Resolver resolves identifiers to durable actor identities.
type Resolver struct {
	handleResolver      HandleResolver
	documentFetcher     DocumentFetcher
	defaultHandleSuffix string
}

// NewResolver constructs a Resolver.
func NewResolver(dependencies ResolverDependencies) (*Resolver, error) {
	if dependencies.HandleResolver == nil {
		return nil, errHandleResolverMissing
	}
	if dependencies.DocumentFetcher == nil {
		return nil, errDocumentFetcherMissing
	}
	return &Resolver{
		handleResolver:      dependencies.HandleResolver,
		documentFetcher:     dependencies.DocumentFetcher,
		defaultHandleSuffix: strings.TrimSpace(dependencies.DefaultHandleSuffix),
	}, nil
}

// ResolveDID returns the DID for identifier. Identifiers already carrying the
// did: prefix are validated and returned unchanged without network calls.
func (resolver *Resolver) ResolveDID(executionContext context.Context, identifier string) (syntax.DID, error) {
	did, _, resolutionError := resolver.resolveDID(executionContext, identifier)
	return did, resolutionError
}

// Resolve returns the DID for identifier together with the actor's data-hosting endpoint.
func (resolver *Resolver) Resolve(executionContext context.Context, identifier string) (Identity, error) {
	did, handle, resolutionError := resolver.resolveDID(executionContext, identifier)
	if resolutionError != nil {
		return Identity{}, resolutionError
	}

	rawDocument, fetchError := resolver.documentFetcher.FetchDocument(executionContext, did)
	if fetchError != nil {
		return Identity{}, fmt.Errorf(documentResolutionErrorTemplateConstant, ErrDocumentUnavailable, did, fetchError)
	}
	if isAbsentDocument(rawDocument) {
		return Identity{}, fmt.Errorf(conditionErrorTemplateConstant, ErrDocumentMissing, did)
	}

	var document Document
	if decodingError := json.Unmarshal(rawDocument, &document); decodingError != nil {
		return Identity{}, fmt.Errorf(documentResolutionErrorTemplateConstant, ErrDocumentUnavailable, did, decodingError)
	}

	serviceEndpoint, endpointError := PersonalDataServerEndpoint(document)
	if endpointError != nil {
		return Identity{}, fmt.Errorf("%s: %w", did, endpointError)
	}

	return Identity{
		Identifier:      strings.TrimSpace(identifier),
		DID:             did,
		Handle:          handle,
		ServiceEndpoint: serviceEndpoint,
	}, nil
}

// PersonalDataServerEndpoint locates the data-hosting endpoint in document.
func PersonalDataServerEndpoint(document Document) (*url.URL, error) {
	var serviceEntry *ServiceEntry
	for entryIndex := range document.Service {
		candidate := &document.Service[entryIndex]
		if candidate.Type == PersonalDataServerServiceType {
			serviceEntry = candidate
			if strings.HasSuffix(candidate.ID, PersonalDataServerServiceID) {
				break
			}
		}
	}
	if serviceEntry == nil {
		return nil, ErrServiceEntryMissing
	}

	var endpointValue string
	if decodingError := json.Unmarshal(serviceEntry.ServiceEndpoint, &endpointValue); decodingError != nil || isAbsentDocument(serviceEntry.ServiceEndpoint) {
		return nil, ErrEndpointNotString
	}

	parsedEndpoint, parseError := url.Parse(strings.TrimSpace(endpointValue))
	if parseError != nil || (parsedEndpoint.Scheme != httpsSchemeConstant && parsedEndpoint.Scheme != httpSchemeConstant) || len(parsedEndpoint.Host) == 0 {
		return nil, fmt.Errorf(endpointMalformedErrorTemplateConstant, ErrEndpointMalformed, serviceEntry.ID, endpointValue)
	}

	return parsedEndpoint, nil
}

func (resolver *Resolver) resolveDID(executionContext context.Context, identifier string) (syntax.DID, string, error) {
	trimmedIdentifier := strings.TrimSpace(identifier)
	if len(trimmedIdentifier) == 0 {
		return "", "", fmt.Errorf(conditionErrorTemplateConstant, ErrIdentifierInvalid, identifierRequiredMessageConstant)
	}

	if strings.HasPrefix(trimmedIdentifier, durableIdentifierPrefixConstant) {
		did, parseError := syntax.ParseDID(trimmedIdentifier)
		if parseError != nil {
			return "", "", fmt.Errorf(invalidDIDErrorTemplateConstant, ErrIdentifierInvalid, trimmedIdentifier, parseError)
		}
		return did, "", nil
	}

	handleCandidate := strings.TrimPrefix(trimmedIdentifier, "@")
	if !strings.Contains(handleCandidate, handleDomainSeparatorConstant) && len(resolver.defaultHandleSuffix) > 0 {
		handleCandidate += resolver.defaultHandleSuffix
	}

	handle, handleError := syntax.ParseHandle(handleCandidate)
	if handleError != nil {
		return "", "", fmt.Errorf(invalidDIDErrorTemplateConstant, ErrIdentifierInvalid, handleCandidate, handleError)
	}
	normalizedHandle := handle.Normalize().String()

	resolvedIdentifier, resolveError := resolver.handleResolver.ResolveHandle(executionContext, normalizedHandle)
	if resolveError != nil {
		return "", "", fmt.Errorf(aliasResolutionErrorTemplateConstant, ErrAliasUnresolvable, normalizedHandle, resolveError)
	}

	did, parseError := syntax.ParseDID(strings.TrimSpace(resolvedIdentifier))
	if parseError != nil {
		return "", "", fmt.Errorf(aliasResolutionErrorTemplateConstant, ErrAliasUnresolvable, normalizedHandle, parseError)
	}

	return did, normalizedHandle, nil
}

func isAbsentDocument(rawDocument json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(rawDocument))
	return len(trimmed) == 0 || trimmed == "null"
}
