package dashboard

import (
	"context"
	"encoding/json"

	"git.home.luguber.info/inful/registrydash/internal/eventstore"
	"git.home.luguber.info/inful/registrydash/internal/fetchstate"
	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
)

// View is the JSON-ready snapshot of one resource.
type View struct {
	Name       string                      `json:"name"`
	Loaded     bool                        `json:"loaded"`
	Generation uint64                      `json:"generation"`
	Data       any                         `json:"data"`
	Error      *ErrorView                  `json:"error,omitempty"`
	History    *eventstore.ResourceSummary `json:"history,omitempty"`
}

// ErrorView is the user-presentable part of a terminal failure.
type ErrorView struct {
	Category  string `json:"category"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func errorView(err error) *ErrorView {
	n := errors.Normalize(err)
	if n == nil {
		return nil
	}
	return &ErrorView{
		Category:  string(n.Category()),
		Message:   n.UserMessage(),
		Retryable: n.IsTransient(),
	}
}

// resource erases the type parameter of a container so the dashboard can keep
// them in one map.
type resource interface {
	view() View
	start(ctx context.Context) <-chan struct{}
	refresh() fetchstate.Ticket
	wait(ctx context.Context) error
	close()
}

type tracked[T any] struct {
	name string
	c    *fetchstate.Container[T]
}

func (t *tracked[T]) view() View {
	s := t.c.State()
	v := View{
		Name:       t.name,
		Loaded:     s.Loaded,
		Generation: t.c.Generation(),
		Data:       s.Data,
	}
	if raw, ok := any(s.Data).(interface{ RawBody() json.RawMessage }); ok && len(raw.RawBody()) > 0 {
		v.Data = raw.RawBody()
	}
	if s.Err != nil {
		v.Error = errorView(s.Err)
	}
	return v
}

func (t *tracked[T]) start(ctx context.Context) <-chan struct{} {
	return t.c.Start(ctx)
}

func (t *tracked[T]) refresh() fetchstate.Ticket {
	return t.c.RefreshTicket()
}

func (t *tracked[T]) wait(ctx context.Context) error {
	return t.c.Wait(ctx)
}

func (t *tracked[T]) close() {
	t.c.Close()
}
