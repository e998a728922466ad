package agent

import "errors"

var (
	// ErrInvalidInput marks a malformed or incomplete payload.
	// Caller-correctable; confirm surfaces it and marks the event error.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedAction marks an (agent, action) pair outside the
	// executor allow-list. The capitalized text is part of the API
	// contract: clients match on it, and it is written verbatim into the
	// failed event's output.
	ErrUnsupportedAction = errors.New("Unsupported agent action")
)
