package sink

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	barcodescan "github.com/ericlevine/barcodescan"
	"github.com/ericlevine/barcodescan/logger"
)

// SessionHeader carries the scan attempt ID on published results.
const SessionHeader = "Barcodescan-Session"

// Publisher is the part of *nats.Conn the NATS sink needs.
type Publisher interface {
	PublishMsg(msg *nats.Msg) error
}

// Message is the JSON body published for a result.
type Message struct {
	Payload   string    `json:"payload"`
	Symbology string    `json:"symbology"`
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	ScannedAt time.Time `json:"scanned_at"`
}

// NATS publishes results to a subject.
type NATS struct {
	pub       Publisher
	subject   string
	sessionID string
	now       func() time.Time
}

// NATSOption configures a NATS sink.
type NATSOption func(*NATS)

// WithSessionID tags published results with the attempt ID.
func WithSessionID(id string) NATSOption {
	return func(n *NATS) { n.sessionID = id }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) NATSOption {
	return func(n *NATS) { n.now = now }
}

// NewNATS returns a sink publishing to subject through pub.
func NewNATS(pub Publisher, subject string, opts ...NATSOption) *NATS {
	n := &NATS{pub: pub, subject: subject, now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Connect dials the NATS server at url.
func Connect(url string, timeout time.Duration) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("barcodescan"),
		nats.Timeout(timeout),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Log.Warn("nats disconnected",
					slog.String("component", "nats_sink"),
					slog.String("error", err.Error()))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", url, err)
	}
	return conn, nil
}

// Deliver implements barcodescan.ResultSink. Publish failures are logged;
// the scan result is not retried.
func (n *NATS) Deliver(result barcodescan.Result) {
	if err := n.publish(result); err != nil {
		logger.Log.Error("publish scan result failed",
			slog.String("component", "nats_sink"),
			slog.String("subject", n.subject),
			slog.String("error", err.Error()))
	}
}

func (n *NATS) publish(result barcodescan.Result) error {
	data, err := json.Marshal(Message{
		Payload:   result.Payload,
		Symbology: result.Symbology.String(),
		Type:      result.Symbology.TypeIdentifier(),
		SessionID: n.sessionID,
		ScannedAt: n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	msg := nats.NewMsg(n.subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	if n.sessionID != "" {
		msg.Header.Set(SessionHeader, n.sessionID)
	}
	return n.pub.PublishMsg(msg)
}
