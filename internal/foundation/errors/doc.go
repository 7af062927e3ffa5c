// Package errors provides the classified error type used across registrydash.
//
// A ClassifiedError carries a category, a severity, a retry hint and a context
// map. The fetch-state machinery relies on Classify to sort failures into three
// outcomes:
//
//   - ClassNotReady: a precondition (host path, record id) is missing. Absorbed silently.
//   - ClassCommonState: an auth, storage or explicitly marked error owned by another layer.
//   - ClassUnknown: everything else; presented through Normalize with a curated message.
//
// Example:
//
//	err := errors.NetworkError("registry unreachable").
//		WithCause(cause).
//		WithContext("host_path", host).
//		Build()
package errors
