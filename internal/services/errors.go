package services

import "errors"

// Error kinds surfaced at the operation boundary. Handlers detect them with
// errors.Is and map them to HTTP statuses; nothing here is fatal to the
// process.
var (
	// ErrValidation marks malformed input, rejected before any state mutation.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a missing or soft-deleted task, booking, provider or
	// service.
	ErrNotFound = errors.New("not found")

	// ErrForbidden marks an actor that is not the task owner or not the
	// requested/accepted provider.
	ErrForbidden = errors.New("actor not permitted")

	// ErrStateConflict marks a transition that is illegal from the current
	// status, including lost optimistic-concurrency races. Callers should
	// re-fetch before retrying.
	ErrStateConflict = errors.New("state conflict")

	// ErrServiceResolution marks a conversion that could not attach a
	// service. The task stays requested so the operation can be retried once
	// the provider's catalog is fixed.
	ErrServiceResolution = errors.New("no service available for booking")
)
