// Package fetchstate keeps the latest result of an asynchronous producer.
//
// A Container owns a (data, loaded, error) triple for exactly one call site. Every
// run is tagged with a generation; a result is committed only if its generation
// is still current when it arrives, so the most recently requested run always
// wins regardless of completion order. Each run also gets its own context,
// cancelled as soon as the run is superseded or the container is closed.
//
// Failures are sorted by the foundation errors classifier:
//
//   - not ready: precondition missing, absorbed without touching Err
//   - common state: handed to Config.OnCommonStateError untouched
//   - anything else: normalized into State.Err
//
// With Config.RefreshRate set, the container polls; the next poll is scheduled
// RefreshRate after the previous run finished, never on a fixed wall-clock tick.
package fetchstate
