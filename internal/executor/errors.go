package executor

import "errors"

// Common errors returned by analysis executors.
var (
	// ErrExecutionFailed is returned when an analysis fails for a general reason.
	ErrExecutionFailed = errors.New("analysis execution failed")

	// ErrInvalidResponse is returned when the model response cannot be used.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the model blocks the request via safety filters.
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry.
	ErrTransientFailure = errors.New("transient error during analysis execution")

	// ErrInvalidConfig is returned when the executor configuration is invalid.
	ErrInvalidConfig = errors.New("invalid executor configuration")
)
