package pagination

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	pageFetchFailedMessageConstant     = "Error fetching records (will retry)"
	pageFetchedMessageConstant         = "Fetched records page"
	logFieldRecordCountConstant        = "record_count"
	logFieldNextCursorConstant         = "next_cursor"
	logFieldCursorConstant             = "cursor"
	logFieldAttemptConstant            = "attempt"
	logFieldRetriesConstant            = "total_retries"
	logFieldPageConstant               = "page"
	retryLimitExceededTemplate         = "page at cursor %q failed %d consecutive times: %v"
	fetchFunctionMissingMessage        = "page fetch function not configured"
	firstPageCursorDescriptionConstant = "<start>"
)

var errFetchFunctionMissing = errors.New(fetchFunctionMissingMessage)

// Page is one listing response. An empty Cursor marks the final page.
type Page[Record any] struct {
	Cursor  string
	Records []Record
}

// FetchFunc retrieves the page following cursor. The first call receives an empty cursor.
type FetchFunc[Record any] func(executionContext context.Context, cursor string) (Page[Record], error)

// Options configures CollectAll.
type Options struct {
	// Limit stops pagination once at least Limit records were accumulated. Zero means unbounded.
	Limit int
	// RetryLimit caps consecutive failures of one page. Zero retries forever.
	RetryLimit int
	// RetryDelay pauses between attempts of a failing page.
	RetryDelay time.Duration
	Logger     *zap.Logger
}

// Statistics summarizes one pagination run.
type Statistics struct {
	Pages   int
	Retries int
}

// RetryLimitExceededError reports a page that kept failing past the retry limit.
type RetryLimitExceededError struct {
	Cursor   string
	Attempts int
	Cause    error
}

// Error describes the exhausted page.
func (limitError RetryLimitExceededError) Error() string {
	return fmt.Sprintf(retryLimitExceededTemplate, limitError.Cursor, limitError.Attempts, limitError.Cause)
}

// Unwrap exposes the last page failure.
func (limitError RetryLimitExceededError) Unwrap() error {
	return limitError.Cause
}

// CollectAll fetches pages until the cursor runs out or options.Limit is reached
// and returns the records in fetch order.
func CollectAll[Record any](executionContext context.Context, fetch FetchFunc[Record], options Options) ([]Record, Statistics, error) {
	if fetch == nil {
		return nil, Statistics{}, errFetchFunctionMissing
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		collected           []Record
		statistics          Statistics
		cursor              string
		consecutiveFailures int
		started             bool
	)

	for !started || (len(cursor) > 0 && (options.Limit <= 0 || len(collected) < options.Limit)) {
		if contextError := executionContext.Err(); contextError != nil {
			return collected, statistics, contextError
		}

		page, fetchError := fetch(executionContext, cursor)
		if fetchError != nil {
			if errors.Is(fetchError, context.Canceled) || errors.Is(fetchError, context.DeadlineExceeded) {
				if contextError := executionContext.Err(); contextError != nil {
					return collected, statistics, contextError
				}
			}

			consecutiveFailures++
			statistics.Retries++
			logger.Warn(
				pageFetchFailedMessageConstant,
				zap.String(logFieldCursorConstant, describeCursor(cursor)),
				zap.Int(logFieldAttemptConstant, consecutiveFailures),
				zap.Int(logFieldRetriesConstant, statistics.Retries),
				zap.Error(fetchError),
			)

			if options.RetryLimit > 0 && consecutiveFailures > options.RetryLimit {
				return collected, statistics, RetryLimitExceededError{Cursor: cursor, Attempts: consecutiveFailures, Cause: fetchError}
			}

			if waitError := wait(executionContext, options.RetryDelay); waitError != nil {
				return collected, statistics, waitError
			}
			continue
		}

		started = true
		consecutiveFailures = 0
		statistics.Pages++
		collected = append(collected, page.Records...)
		cursor = page.Cursor

		logger.Debug(
			pageFetchedMessageConstant,
			zap.Int(logFieldPageConstant, statistics.Pages),
			zap.Int(logFieldRecordCountConstant, len(page.Records)),
			zap.String(logFieldNextCursorConstant, cursor),
		)
	}

	return collected, statistics, nil
}

func wait(executionContext context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-executionContext.Done():
		return executionContext.Err()
	case <-timer.C:
		return nil
	}
}

func describeCursor(cursor string) string {
	if len(cursor) == 0 {
		return firstPageCursorDescriptionConstant
	}
	return cursor
}
