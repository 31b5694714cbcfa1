package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// DefaultEmailSubject is where rendered emails are published for the
// notifications service to deliver.
const DefaultEmailSubject = "notifications.timesheets.email"

// EmailMessage is the JSON schema published to NATS.
type EmailMessage struct {
	ID       string    `json:"id"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	HTMLBody string    `json:"html_body"`
	Category string    `json:"category"`
	QueuedAt time.Time `json:"queued_at"`
}

// NotificationPublisher hands rendered approval emails to the notifications
// service over NATS. With no connection it only logs, so a local run without
// a broker keeps working.
type NotificationPublisher struct {
	conn    *nats.Conn
	subject string
	log     zerolog.Logger
	now     func() time.Time
}

// NewNotificationPublisher creates a publisher backed by conn, which may be nil.
func NewNotificationPublisher(conn *nats.Conn, subject string, log zerolog.Logger) *NotificationPublisher {
	if subject == "" {
		subject = DefaultEmailSubject
	}
	return &NotificationPublisher{conn: conn, subject: subject, log: log, now: time.Now}
}

// ConnectNATS dials url with reconnect logging. An empty url disables
// publishing and returns a nil connection.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return conn, nil
}

// Send publishes one email. Delivery happens downstream; a nil error only
// means the broker accepted the message.
func (p *NotificationPublisher) Send(ctx context.Context, recipient, subject, htmlBody string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if recipient == "" {
		return fmt.Errorf("notification: empty recipient")
	}

	msg := &EmailMessage{
		ID:       uuid.NewString(),
		To:       recipient,
		Subject:  subject,
		HTMLBody: htmlBody,
		Category: "timesheet_approval",
		QueuedAt: p.now().UTC(),
	}

	if p.conn == nil {
		p.log.Info().
			Str("to", recipient).
			Str("subject", subject).
			Msg("notification: no NATS connection, email not published")
		return nil
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notification: failed to marshal email: %w", err)
	}

	out := nats.NewMsg(p.subject)
	out.Data = data
	out.Header.Set(nats.MsgIdHdr, msg.ID)
	if err := p.conn.PublishMsg(out); err != nil {
		return fmt.Errorf("notification: failed to publish to %s: %w", p.subject, err)
	}

	p.log.Debug().
		Str("subject", p.subject).
		Str("message_id", msg.ID).
		Str("to", recipient).
		Msg("notification: email published")
	return nil
}
