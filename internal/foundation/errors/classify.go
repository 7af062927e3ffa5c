package errors

// Class is the coarse outcome of classifying a failed fetch.
type Class int

const (
	// ClassNone is returned for a nil error.
	ClassNone Class = iota
	// ClassNotReady means a precondition is missing; callers stay silent.
	ClassNotReady
	// ClassCommonState means another layer owns the error; callers pass it on unchanged.
	ClassCommonState
	// ClassUnknown is a terminal failure shown to users through Normalize.
	ClassUnknown
)

func (c Class) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassNotReady:
		return "not_ready"
	case ClassCommonState:
		return "common_state"
	case ClassUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// UnknownErrorMessage is shown to users for failures that carry no curated message.
const UnknownErrorMessage = "the resource could not be loaded"

const notReadyMessage = "not ready"

// ErrNotReady matches (via errors.Is) every error built with NotReady.
var ErrNotReady = NewError(CategoryNotReady, notReadyMessage).Info().Build()

// commonStateCategories are owned by layers other than the fetch state.
var commonStateCategories = []ErrorCategory{CategoryCommonState, CategoryAuth, CategoryEventStore}

// NotReady returns an error signalling that reason (e.g. "host path", "model id")
// is not available yet.
func NotReady(reason string) *ClassifiedError {
	return NewError(CategoryNotReady, notReadyMessage).
		Info().
		WithContext("reason", reason).
		Build()
}

// IsNotReady reports whether err classifies as ClassNotReady.
func IsNotReady(err error) bool {
	return Classify(err) == ClassNotReady
}

// Classify sorts err into one of the fetch outcome classes. NotReady anywhere
// in the chain wins over every other category.
func Classify(err error) Class {
	if err == nil {
		return ClassNone
	}
	if HasCategory(err, CategoryNotReady) {
		return ClassNotReady
	}
	for _, category := range commonStateCategories {
		if HasCategory(err, category) {
			return ClassCommonState
		}
	}
	return ClassUnknown
}

// Normalize turns a terminal failure into a ClassifiedError whose UserMessage
// is safe to present. Classified errors already carry a curated message and
// are returned unchanged; anything else is wrapped with UnknownErrorMessage so
// its detail only reaches logs.
func Normalize(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	if classified, ok := AsClassified(err); ok {
		return classified
	}
	return WrapError(err, CategoryFetch, UnknownErrorMessage).Build()
}
