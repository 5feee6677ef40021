package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bluesky-social/indigo/atproto/syntax"
	"go.uber.org/zap"

	"github.com/temirov/pin2saved/internal/atproto"
	"github.com/temirov/pin2saved/internal/identity"
	"github.com/temirov/pin2saved/internal/pagination"
	"github.com/temirov/pin2saved/internal/pins"
)

const (
	// DefaultPageSize is the number of records requested per listRecords page.
	DefaultPageSize = 100

	identifierFieldNameConstant              = "identifier"
	modeFieldNameConstant                    = "mode"
	pageSizeFieldNameConstant                = "page_size"
	pageRetryLimitFieldNameConstant          = "page_retry_limit"
	requiredValueMessageConstant             = "value required"
	nonNegativeValueMessageConstant          = "value must not be negative"
	identityResolverMissingMessageConstant   = "identity resolver not configured"
	sessionOpenerMissingMessageConstant      = "session opener not configured"
	readingBatchProgressTemplateConstant     = "Reading batch %d"
	creatingBookmarkProgressTemplateConstant = "Creating bookmark %d"
	deletingBookmarkProgressTemplateConstant = "Deleting bookmark %d"
	identityResolutionErrorTemplateConstant  = "unable to resolve %s: %w"
	sessionOpenErrorTemplateConstant         = "unable to open session for %s: %w"
	discoveryErrorTemplateConstant           = "unable to discover pin markers: %w"
	bookmarkCreationErrorTemplateConstant    = "unable to create bookmark %d for %s: %w"
	markerDeletionErrorTemplateConstant      = "unable to delete pin marker %d (%s): %w"
	migrationStartedMessageConstant          = "Migration started"
	actorResolvedMessageConstant             = "Actor resolved"
	discoveryCompletedMessageConstant        = "Pin markers discovered"
	bookmarkCreatedMessageConstant           = "Bookmark created"
	markerDeletedMessageConstant             = "Pin marker deleted"
	migrationCompletedMessageConstant        = "Migration completed"
	logFieldRunIdentifierConstant            = "run_id"
	logFieldIdentifierConstant               = "identifier"
	logFieldDIDConstant                      = "did"
	logFieldServiceEndpointConstant          = "service_endpoint"
	logFieldModeConstant                     = "mode"
	logFieldMarkerCountConstant              = "marker_count"
	logFieldPagesConstant                    = "pages"
	logFieldPageRetriesConstant              = "page_retries"
	logFieldMarkerURIConstant                = "marker_uri"
	logFieldSubjectURIConstant               = "subject_uri"
	logFieldCreatedConstant                  = "bookmarks_created"
	logFieldDeletedConstant                  = "markers_deleted"
)

// InvalidInputError describes migration option validation failures.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s", inputError.FieldName, inputError.Message)
}

// ProgressReporter receives human-readable progress messages. Each message
// supersedes the previous one.
type ProgressReporter func(message string)

// IdentityResolver resolves an identifier to a DID and its data-hosting endpoint.
type IdentityResolver interface {
	Resolve(executionContext context.Context, identifier string) (identity.Identity, error)
}

// RepositoryOperations are the repository capabilities the migration needs.
type RepositoryOperations interface {
	ListRecords(executionContext context.Context, request atproto.ListRecordsRequest) (atproto.RecordPage, error)
	CreateBookmark(executionContext context.Context, subject atproto.StrongRef) error
	DeleteRecord(executionContext context.Context, uri string) error
}

// SessionOpener authenticates against the resolved actor's endpoint.
type SessionOpener interface {
	OpenSession(executionContext context.Context, actor identity.Identity) (RepositoryOperations, error)
}

// SessionOpenerFunc adapts a function to SessionOpener.
type SessionOpenerFunc func(executionContext context.Context, actor identity.Identity) (RepositoryOperations, error)

// OpenSession calls the function.
func (opener SessionOpenerFunc) OpenSession(executionContext context.Context, actor identity.Identity) (RepositoryOperations, error) {
	return opener(executionContext, actor)
}

// MigrationExecutor runs a complete migration.
type MigrationExecutor interface {
	Execute(executionContext context.Context, options MigrationOptions, progress ProgressReporter) (MigrationResult, error)
}

// ServiceDependencies describes required collaborators for migration.
type ServiceDependencies struct {
	Logger           *zap.Logger
	IdentityResolver IdentityResolver
	SessionOpener    SessionOpener
}

// MigrationOptions configures one migration run.
type MigrationOptions struct {
	Identifier     string
	Mode           Mode
	PageSize       int
	PageRetryLimit int
	PageRetryDelay time.Duration
	RunIdentifier  string
}

// DiscoveryOptions configures the discovery phase.
type DiscoveryOptions struct {
	PageSize       int
	PageRetryLimit int
	PageRetryDelay time.Duration
}

// MigrationResult captures the observable outcomes.
type MigrationResult struct {
	Actor            identity.Identity
	Markers          []pins.Marker
	CreatedBookmarks int
	DeletedMarkers   int
	PagesFetched     int
	PageRetries      int
}

// Service orchestrates the pin-marker migration.
type Service struct {
	logger           *zap.Logger
	identityResolver IdentityResolver
	sessionOpener    SessionOpener
}

var (
	errIdentityResolverMissing = errors.New(identityResolverMissingMessageConstant)
	errSessionOpenerMissing    = errors.New(sessionOpenerMissingMessageConstant)
)

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.IdentityResolver == nil {
		return nil, errIdentityResolverMissing
	}
	if dependencies.SessionOpener == nil {
		return nil, errSessionOpenerMissing
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		logger:           logger,
		identityResolver: dependencies.IdentityResolver,
		sessionOpener:    dependencies.SessionOpener,
	}, nil
}

// Execute resolves the actor, opens the session, and runs discovery, creation,
// and, in delete mode, deletion. The first creation or deletion failure aborts the run.
func (service *Service) Execute(executionContext context.Context, options MigrationOptions, progress ProgressReporter) (MigrationResult, error) {
	if validationError := validateOptions(options); validationError != nil {
		return MigrationResult{}, validationError
	}
	progress = normalizeProgress(progress)

	runLogger := service.logger
	if len(options.RunIdentifier) > 0 {
		runLogger = runLogger.With(zap.String(logFieldRunIdentifierConstant, options.RunIdentifier))
	}
	runLogger.Info(
		migrationStartedMessageConstant,
		zap.String(logFieldIdentifierConstant, options.Identifier),
		zap.String(logFieldModeConstant, string(options.Mode)),
	)

	actor, resolutionError := service.identityResolver.Resolve(executionContext, options.Identifier)
	if resolutionError != nil {
		return MigrationResult{}, fmt.Errorf(identityResolutionErrorTemplateConstant, strings.TrimSpace(options.Identifier), resolutionError)
	}
	runLogger.Info(
		actorResolvedMessageConstant,
		zap.String(logFieldDIDConstant, actor.DID.String()),
		zap.Stringer(logFieldServiceEndpointConstant, actor.ServiceEndpoint),
	)

	result := MigrationResult{Actor: actor}

	repository, sessionError := service.sessionOpener.OpenSession(executionContext, actor)
	if sessionError != nil {
		return result, fmt.Errorf(sessionOpenErrorTemplateConstant, actor.DID, sessionError)
	}

	phaseService := &Service{logger: runLogger, identityResolver: service.identityResolver, sessionOpener: service.sessionOpener}

	markers, statistics, discoveryError := phaseService.Discover(executionContext, repository, actor.DID, DiscoveryOptions{
		PageSize:       options.PageSize,
		PageRetryLimit: options.PageRetryLimit,
		PageRetryDelay: options.PageRetryDelay,
	}, progress)
	result.PagesFetched = statistics.Pages
	result.PageRetries = statistics.Retries
	if discoveryError != nil {
		return result, fmt.Errorf(discoveryErrorTemplateConstant, discoveryError)
	}
	result.Markers = markers

	created, creationError := phaseService.CreateSavedPosts(executionContext, repository, markers, progress)
	result.CreatedBookmarks = created
	if creationError != nil {
		return result, creationError
	}

	if options.Mode.DeletesMarkers() {
		deleted, deletionError := phaseService.DeletePinMarkers(executionContext, repository, markers, progress)
		result.DeletedMarkers = deleted
		if deletionError != nil {
			return result, deletionError
		}
	}

	runLogger.Info(
		migrationCompletedMessageConstant,
		zap.String(logFieldDIDConstant, actor.DID.String()),
		zap.Int(logFieldMarkerCountConstant, len(markers)),
		zap.Int(logFieldCreatedConstant, result.CreatedBookmarks),
		zap.Int(logFieldDeletedConstant, result.DeletedMarkers),
		zap.Int(logFieldPagesConstant, result.PagesFetched),
		zap.Int(logFieldPageRetriesConstant, result.PageRetries),
	)

	return result, nil
}

// Discover lists the actor's posts, keeps the pin markers, and orders them by
// creation time. Page failures are retried at the same cursor.
func (service *Service) Discover(executionContext context.Context, repository RepositoryOperations, actor syntax.DID, options DiscoveryOptions, progress ProgressReporter) ([]pins.Marker, pagination.Statistics, error) {
	progress = normalizeProgress(progress)

	pageSize := options.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	batchNumber := 0
	fetchPage := func(pageContext context.Context, cursor string) (pagination.Page[pins.Marker], error) {
		batchNumber++
		progress(fmt.Sprintf(readingBatchProgressTemplateConstant, batchNumber))

		page, listError := repository.ListRecords(pageContext, atproto.ListRecordsRequest{
			Repository: actor.String(),
			Collection: pins.PostCollection,
			Cursor:     cursor,
			Limit:      pageSize,
		})
		if listError != nil {
			return pagination.Page[pins.Marker]{}, listError
		}

		return pagination.Page[pins.Marker]{Cursor: page.Cursor, Records: pins.Filter(page.Records)}, nil
	}

	markers, statistics, collectionError := pagination.CollectAll(executionContext, fetchPage, pagination.Options{
		RetryLimit: options.PageRetryLimit,
		RetryDelay: options.PageRetryDelay,
		Logger:     service.logger,
	})
	if collectionError != nil {
		return nil, statistics, collectionError
	}

	pins.SortByCreation(markers)

	service.logger.Info(
		discoveryCompletedMessageConstant,
		zap.String(logFieldDIDConstant, actor.String()),
		zap.Int(logFieldMarkerCountConstant, len(markers)),
		zap.Int(logFieldPagesConstant, statistics.Pages),
		zap.Int(logFieldPageRetriesConstant, statistics.Retries),
	)

	return markers, statistics, nil
}

// CreateSavedPosts saves the parent of every marker, in order, one call at a time.
// It returns the number of bookmarks created before the first failure.
func (service *Service) CreateSavedPosts(executionContext context.Context, repository RepositoryOperations, markers []pins.Marker, progress ProgressReporter) (int, error) {
	progress = normalizeProgress(progress)

	for markerIndex, marker := range markers {
		progress(fmt.Sprintf(creatingBookmarkProgressTemplateConstant, markerIndex+1))

		if creationError := repository.CreateBookmark(executionContext, marker.Parent); creationError != nil {
			return markerIndex, fmt.Errorf(bookmarkCreationErrorTemplateConstant, markerIndex+1, marker.Parent.URI, creationError)
		}

		service.logger.Debug(
			bookmarkCreatedMessageConstant,
			zap.String(logFieldMarkerURIConstant, marker.URI),
			zap.String(logFieldSubjectURIConstant, marker.Parent.URI),
		)
	}

	return len(markers), nil
}

// DeletePinMarkers deletes every marker reply, in order, one call at a time.
// Only the marker's own record is deleted, never the pinned post.
func (service *Service) DeletePinMarkers(executionContext context.Context, repository RepositoryOperations, markers []pins.Marker, progress ProgressReporter) (int, error) {
	progress = normalizeProgress(progress)

	for markerIndex, marker := range markers {
		progress(fmt.Sprintf(deletingBookmarkProgressTemplateConstant, markerIndex+1))

		if deletionError := repository.DeleteRecord(executionContext, marker.URI); deletionError != nil {
			return markerIndex, fmt.Errorf(markerDeletionErrorTemplateConstant, markerIndex+1, marker.URI, deletionError)
		}

		service.logger.Debug(markerDeletedMessageConstant, zap.String(logFieldMarkerURIConstant, marker.URI))
	}

	return len(markers), nil
}

func validateOptions(options MigrationOptions) error {
	if len(strings.TrimSpace(options.Identifier)) == 0 {
		return InvalidInputError{FieldName: identifierFieldNameConstant, Message: requiredValueMessageConstant}
	}
	if _, modeError := ParseMode(string(options.Mode)); modeError != nil {
		return InvalidInputError{FieldName: modeFieldNameConstant, Message: modeError.Error()}
	}
	if options.PageSize < 0 {
		return InvalidInputError{FieldName: pageSizeFieldNameConstant, Message: nonNegativeValueMessageConstant}
	}
	if options.PageRetryLimit < 0 {
		return InvalidInputError{FieldName: pageRetryLimitFieldNameConstant, Message: nonNegativeValueMessageConstant}
	}
	return nil
}

func normalizeProgress(progress ProgressReporter) ProgressReporter {
	if progress == nil {
		return func(string) {}
	}
	return progress
}
