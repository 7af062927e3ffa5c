package registryapi

import (
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
)

var (
	// ErrNoHostPath is returned by every call on a client built without a host path.
	ErrNoHostPath = errors.NotReady("host path")

	// ErrNoModelID is returned when a model-scoped call receives an empty id.
	ErrNoModelID = errors.NotReady("model id")
)
