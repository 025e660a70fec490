package challenge

import "errors"

var (
	// ErrMalformedObservation is returned for an observation of unknown kind
	// or a single-face observation without metrics
	ErrMalformedObservation = errors.New("malformed face observation")

	// ErrAlreadyFinished is returned when a finished engine is driven again
	ErrAlreadyFinished = errors.New("challenge session already finished")

	// ErrUnknownStep is returned by ParseStep for values outside the step set
	ErrUnknownStep = errors.New("unknown challenge step")
)
