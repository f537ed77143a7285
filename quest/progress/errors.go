package progress

import "errors"

var (
	// ErrProgressNotFound is returned when a user has no progress record yet.
	ErrProgressNotFound = errors.New("progress: no record for user")
	// ErrStepNotFound is returned when a step id is not part of the user's template.
	ErrStepNotFound = errors.New("progress: step not in template")
	// ErrCannotSkipRequiredStep is returned on skip attempts against required steps.
	ErrCannotSkipRequiredStep = errors.New("progress: cannot skip required step")
	// ErrAlreadyTerminal is returned for transitions after the quest completed.
	ErrAlreadyTerminal = errors.New("progress: quest already completed")
	// ErrPersistenceUnavailable is returned when conditional writes keep
	// losing races or the store fails outright.
	ErrPersistenceUnavailable = errors.New("progress: persistence unavailable")
)
