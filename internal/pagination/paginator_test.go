package pagination_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/temirov/pin2saved/internal/pagination"
)

const pageFetchFailedMessageConstant = "Error fetching records (will retry)"

var errTransientFetch = errors.New("transient failure")

type pagedSource struct {
	records         []int
	pageSize        int
	failuresBy      map[string]int
	requestedCursor []string
}

func (source *pagedSource) fetch(_ context.Context, cursor string) (pagination.Page[int], error) {
	source.requestedCursor = append(source.requestedCursor, cursor)
	if remaining := source.failuresBy[cursor]; remaining != 0 {
		if remaining > 0 {
			source.failuresBy[cursor] = remaining - 1
		}
		return pagination.Page[int]{}, errTransientFetch
	}

	offset := 0
	if len(cursor) > 0 {
		offset, _ = strconv.Atoi(cursor)
	}
	end := min(offset+source.pageSize, len(source.records))
	page := pagination.Page[int]{Records: source.records[offset:end]}
	if end < len(source.records) {
		page.Cursor = strconv.Itoa(end)
	}
	return page, nil
}

func TestCollectAllConcatenatesPages(testInstance *testing.T) {
	source := &pagedSource{records: []int{1, 2, 3, 4, 5}, pageSize: 2}

	records, statistics, collectError := pagination.CollectAll(context.Background(), source.fetch, pagination.Options{})
	require.NoError(testInstance, collectError)
	require.Equal(testInstance, []int{1, 2, 3, 4, 5}, records)
	require.Equal(testInstance, pagination.Statistics{Pages: 3}, statistics)
	require.Equal(testInstance, []string{"", "2", "4"}, source.requestedCursor)
}

func TestCollectAllHandlesEmptyListing(testInstance *testing.T) {
	source := &pagedSource{pageSize: 2}

	records, statistics, collectError := pagination.CollectAll(context.Background(), source.fetch, pagination.Options{})
	require.NoError(testInstance, collectError)
	require.Empty(testInstance, records)
	require.Equal(testInstance, 1, statistics.Pages)
}

func TestCollectAllStopsAtLimit(testInstance *testing.T) {
	source := &pagedSource{records: []int{1, 2, 3, 4, 5}, pageSize: 2}

	records, statistics, collectError := pagination.CollectAll(context.Background(), source.fetch, pagination.Options{Limit: 3})
	require.NoError(testInstance, collectError)
	require.Equal(testInstance, []int{1, 2, 3, 4}, records)
	require.Equal(testInstance, 2, statistics.Pages)
}

func TestCollectAllRetriesSameCursor(testInstance *testing.T) {
	testCases := []struct {
		name            string
		failuresBy      map[string]int
		expectedCursors []string
		expectedRetries int
	}{
		{
			name:            "first_page",
			failuresBy:      map[string]int{"": 2},
			expectedCursors: []string{"", "", "", "2"},
			expectedRetries: 2,
		},
		{
			name:            "middle_page",
			failuresBy:      map[string]int{"2": 1},
			expectedCursors: []string{"", "2", "2"},
			expectedRetries: 1,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			observedCore, observedLogs := observer.New(zapcore.DebugLevel)
			source := &pagedSource{records: []int{1, 2, 3}, pageSize: 2, failuresBy: testCase.failuresBy}

			records, statistics, collectError := pagination.CollectAll(context.Background(), source.fetch, pagination.Options{
				RetryDelay: time.Millisecond,
				Logger:     zap.New(observedCore),
			})
			require.NoError(testInstance, collectError)
			require.Equal(testInstance, []int{1, 2, 3}, records)
			require.Equal(testInstance, testCase.expectedCursors, source.requestedCursor)
			require.Equal(testInstance, pagination.Statistics{Pages: 2, Retries: testCase.expectedRetries}, statistics)
			require.Equal(testInstance, testCase.expectedRetries, observedLogs.FilterMessage(pageFetchFailedMessageConstant).Len())
		})
	}
}

func TestCollectAllReturnsRetryLimitExceeded(testInstance *testing.T) {
	source := &pagedSource{records: []int{1, 2, 3}, pageSize: 2, failuresBy: map[string]int{"2": -1}}

	records, statistics, collectError := pagination.CollectAll(context.Background(), source.fetch, pagination.Options{RetryLimit: 2})
	require.Error(testInstance, collectError)

	var limitError pagination.RetryLimitExceededError
	require.ErrorAs(testInstance, collectError, &limitError)
	require.Equal(testInstance, "2", limitError.Cursor)
	require.Equal(testInstance, 3, limitError.Attempts)
	require.ErrorIs(testInstance, collectError, errTransientFetch)
	require.Equal(testInstance, []int{1, 2}, records)
	require.Equal(testInstance, pagination.Statistics{Pages: 1, Retries: 3}, statistics)
}

func TestCollectAllStopsOnCancellation(testInstance *testing.T) {
	executionContext, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	fetch := func(_ context.Context, cursor string) (pagination.Page[int], error) {
		attempts++
		if attempts == 4 {
			cancel()
		}
		return pagination.Page[int]{}, errTransientFetch
	}

	_, _, collectError := pagination.CollectAll(executionContext, fetch, pagination.Options{})
	require.ErrorIs(testInstance, collectError, context.Canceled)
	require.Equal(testInstance, 4, attempts)
}

func TestCollectAllRequiresFetchFunction(testInstance *testing.T) {
	_, _, collectError := pagination.CollectAll[int](context.Background(), nil, pagination.Options{})
	require.Error(testInstance, collectError)
}
