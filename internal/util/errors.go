package util

import "errors"

var (
	ErrNoTable    = errors.New("no table structure found in agenda report")
	ErrNoIDColumn = errors.New("agenda report header has no document id column")

	ErrCacheMiss      = errors.New("cache miss")
	ErrSchemaMismatch = errors.New("cache schema version mismatch")

	ErrMeetingNotFound = errors.New("meeting not found")
	ErrTDocNotFound    = errors.New("tdoc not found")
	ErrFetchStatus     = errors.New("unexpected fetch status")
	ErrBodyTooLarge    = errors.New("response body exceeds size limit")
)
