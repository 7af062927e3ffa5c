package eventstore

import (
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
)

// Sentinels for store failures. They belong to the event store category, so a
// fetch of the history classifies them as common state owned by this layer.
var (
	ErrDatabaseOpenFailed     = errors.EventStoreError("could not open event store database").Build()
	ErrInitializeSchemaFailed = errors.EventStoreError("failed to initialize event store schema").Build()
	ErrEventAppendFailed      = errors.EventStoreError("failed to append event to store").Build()
	ErrEventQueryFailed       = errors.EventStoreError("failed to query events from store").Build()
	ErrEventScanFailed        = errors.EventStoreError("failed to scan event rows").Build()
	ErrEventPruneFailed       = errors.EventStoreError("failed to prune events").Build()
	ErrStoreClosed            = errors.EventStoreError("event store is closed").Build()
)

// wrap attaches cause to sentinel. errors.Is(result, sentinel) holds.
func wrap(sentinel *errors.ClassifiedError, cause error) error {
	return errors.WrapError(cause, sentinel.Category(), sentinel.Message()).Build()
}
