package fetchstate

import (
	"time"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
)

// State is a consistent snapshot of a Container.
type State[T any] struct {
	// Data is the last successfully fetched value, or the default value.
	Data T
	// Loaded becomes true once an attempt settled and stays true across refreshes.
	Loaded bool
	// Err is the most recent terminal failure, already normalized. It is cleared
	// by the next success.
	Err error
}

// Settlement describes how one committed run ended. Err is the producer's
// error as returned, before normalization.
type Settlement struct {
	Generation uint64
	Class      errors.Class
	Err        error
	Duration   time.Duration
}

// Ticket follows one run started by RefreshTicket.
type Ticket struct {
	Generation uint64
	Done       <-chan struct{}
}
