package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/registrydash/internal/foundation/errors"
	"git.home.luguber.info/inful/registrydash/internal/logfields"
)

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSNotifier publishes notifications as JSON to a subject.
type NATSNotifier struct {
	pub     Publisher
	subject string
	conn    *nats.Conn
}

// NewNATSNotifier publishes through pub.
func NewNATSNotifier(pub Publisher, subject string) *NATSNotifier {
	return &NATSNotifier{pub: pub, subject: subject}
}

// ConnectNATS dials url and returns a notifier that owns the connection.
func ConnectNATS(url, subject string) (*NATSNotifier, error) {
	conn, err := nats.Connect(url, nats.Name("registrydash"))
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryNotify, "failed to connect to NATS").
			WithContext("url", url).
			Retryable().
			Build()
	}
	slog.Info("NATS notifier connected", logfields.URL(url), slog.String("subject", subject))
	return &NATSNotifier{pub: conn, subject: subject, conn: conn}, nil
}

func (n *NATSNotifier) Notify(_ context.Context, note Notification) error {
	data, err := json.Marshal(note)
	if err != nil {
		return errors.WrapError(err, errors.CategoryInternal, "failed to marshal notification").Build()
	}
	subject := n.subject + "." + string(note.Kind)
	if err := n.pub.Publish(subject, data); err != nil {
		return errors.WrapError(err, errors.CategoryNotify, "failed to publish notification").
			WithContext("subject", subject).
			Build()
	}
	return nil
}

// Close drains and closes an owned connection.
func (n *NATSNotifier) Close() {
	if n.conn != nil {
		if err := n.conn.Drain(); err != nil {
			n.conn.Close()
		}
	}
}
