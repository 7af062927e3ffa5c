package dashboard

import (
	"time"

	"git.home.luguber.info/inful/registrydash/internal/eventstore"
	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
	"git.home.luguber.info/inful/registrydash/internal/notify"
)

// onSettle records a committed run and raises error and recovery
// notifications on class transitions.
func (d *Dashboard) onSettle(name string, s fetchstate.Settlement) {
	ctx := d.runContext()
	e := eventstore.Event{
		Resource:   name,
		Generation: s.Generation,
		Class:      s.Class.String(),
		Duration:   s.Duration,
		At:         time.Now().UTC(),
	}
	if s.Err != nil {
		ev := errorView(s.Err)
		e.Message = ev.Message
		e.Metadata = map[string]string{"category": ev.Category}
	}
	if err := d.store.Append(ctx, e); err != nil {
		d.log.Warn("Failed to record fetch event", logfields.Resource(name), logfields.Error(err))
	} else {
		d.projection.Apply(e)
		d.events.Refresh()
	}

	d.mu.Lock()
	prev, seen := d.lastClass[name]
	d.lastClass[name] = s.Class
	if s.Class == errors.ClassNone {
		delete(d.lastState, name)
	}
	d.mu.Unlock()

	switch {
	case s.Class == errors.ClassUnknown && prev != errors.ClassUnknown:
		d.notify(notify.New(notify.KindError, name, e.Metadata["category"], e.Message))
	case s.Class == errors.ClassNone && seen && prev == errors.ClassUnknown:
		d.notify(notify.New(notify.KindRecovered, name, "", "the resource loaded again"))
	}
}

// onCommonState forwards errors owned by other layers to the notifiers,
// once per distinct message until the resource succeeds again.
func (d *Dashboard) onCommonState(name string, err error) {
	ev := errorView(err)
	d.mu.Lock()
	if d.lastState[name] == ev.Message {
		d.mu.Unlock()
		return
	}
	d.lastState[name] = ev.Message
	d.mu.Unlock()

	d.notify(notify.New(notify.KindCommonState, name, ev.Category, ev.Message))
}

func (d *Dashboard) notify(n notify.Notification) {
	if err := d.notifier.Notify(d.runContext(), n); err != nil {
		d.log.Warn("Failed to deliver notification",
			logfields.Resource(n.Resource),
			logfields.Error(err))
	}
}

// afterPrune rebuilds the summaries and reloads the events resource.
func (d *Dashboard) afterPrune() {
	if err := d.projection.Rebuild(d.runContext()); err != nil {
		d.log.Warn("Failed to rebuild fetch history summaries", logfields.Error(err))
	}
	d.events.Refresh()
}
