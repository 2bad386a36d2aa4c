package task

import "errors"

var (
	// ErrMalformedTask marks a stored task whose time or recurrence fields
	// cannot be parsed. Policy: remove the task, log, keep going.
	ErrMalformedTask = errors.New("malformed task")

	// ErrDuplicateID is returned by the store when inserting an id that
	// already exists. The command gateway regenerates and retries.
	ErrDuplicateID = errors.New("duplicate task id")

	// ErrNotFound is returned when an operation names an unknown task id.
	ErrNotFound = errors.New("task not found")
)
