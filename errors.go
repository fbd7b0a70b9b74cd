package pagestore

import (
	"github.com/davidvella/pagestore/record"
	"github.com/pkg/errors"
)

// Errors returned by engine operations. A missing record is not an error:
// Find, Update and Delete report it through their boolean result.
var (
	// ErrSizeExceeded is returned when a record does not fit in one page.
	// Nothing is written.
	ErrSizeExceeded = errors.New("pagestore: record exceeds page size")
	// ErrMissingID is returned when a record has no id field.
	ErrMissingID = record.ErrMissingID
	// ErrDuplicateID is returned when inserting an id the table already holds.
	ErrDuplicateID = errors.New("pagestore: duplicate id")
	// ErrIDMismatch is returned when an update tries to change a record's id.
	ErrIDMismatch = errors.New("pagestore: update cannot change id")
	// ErrCorruption is returned when the index and the page file disagree,
	// or a page fails its checksum.
	ErrCorruption = errors.New("pagestore: corruption detected")
	// ErrInvalidTable is returned for table names that are not plain file names.
	ErrInvalidTable = errors.New("pagestore: invalid table name")
	// ErrClosed is returned when operating on a closed engine.
	ErrClosed = errors.New("pagestore: engine closed")
)
