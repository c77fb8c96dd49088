// Package notify publishes run summaries to NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"flight_tracker/internal/reconcile"
)

// DefaultSubject is where summaries are published unless configured otherwise.
const DefaultSubject = "flights.sync.completed"

// Publisher sends a message on a subject. Implemented by *nats.Conn.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials the NATS server at url and keeps reconnecting in the
// background if the connection drops.
func Connect(url string, logger zerolog.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("flighttracker"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return nc, nil
}

// Notifier is a reconcile.RunHook publishing each summary as JSON.
type Notifier struct {
	pub     Publisher
	subject string
	logger  zerolog.Logger
}

// New creates a Notifier. An empty subject means DefaultSubject.
func New(pub Publisher, subject string, logger zerolog.Logger) *Notifier {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Notifier{pub: pub, subject: subject, logger: logger}
}

// RunCompleted publishes s.
func (n *Notifier) RunCompleted(_ context.Context, s reconcile.Summary) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	if err := n.pub.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publish to %s: %w", n.subject, err)
	}
	n.logger.Debug().Str("subject", n.subject).Str("run_id", s.RunID.String()).Msg("run summary published")
	return nil
}
