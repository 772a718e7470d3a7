package bus

import (
	"fmt"
	"strings"
	"time"

	"github.com/erilali/troubleflipper/internal/logger"
	"github.com/nats-io/nats.go"
)

const (
	defaultFlushTimeout = 2 * time.Second
	streamRetention     = 30 * time.Minute
)

// StreamDef describes one JetStream stream backing a topic family.
type StreamDef struct {
	Name     string
	Subjects []string
}

// Streams used for persistent delivery. Subjects are the NATS form of the
// slash topics ("user/abc" is published as "user.abc").
var Streams = []StreamDef{
	{Name: "USERS", Subjects: []string{"users", "user.>"}},
	{Name: "TEAMS", Subjects: []string{"team.>"}},
	{Name: "TOURNAMENTS", Subjects: []string{"tournaments", "tournament.>"}},
}

// SubjectForTopic maps a slash separated topic onto a NATS subject so that
// topic levels become subject tokens and NATS wildcards keep working.
func SubjectForTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}

// TopicForSubject is the inverse of SubjectForTopic.
func TopicForSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}

// NATSClient builds messages for a NATSSession.
type NATSClient struct{}

func (NATSClient) CreateMessage() OutboundMessage {
	return &Message{mode: DeliveryModeDirect}
}

func (NATSClient) CreateTopicDestination(topic string) Destination {
	return Topic(topic)
}

type corePublisher interface {
	Publish(subj string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	IsClosed() bool
}

type streamPublisher interface {
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
}

// NATSSession sends messages over a NATS connection. Direct messages use core
// NATS, non-persistent ones wait for a server flush and persistent ones go
// through JetStream.
type NATSSession struct {
	conn         corePublisher
	js           streamPublisher
	flushTimeout time.Duration
	Logger       *logger.Logger
}

// NewNATSSession wraps an established connection. js may be nil, in which
// case persistent sends fail with ErrPersistenceUnavailable.
func NewNATSSession(nc *nats.Conn, js nats.JetStreamContext, log *logger.Logger) *NATSSession {
	s := &NATSSession{flushTimeout: defaultFlushTimeout, Logger: log}
	if nc != nil {
		s.conn = nc
	}
	if js != nil {
		s.js = js
	}
	if s.Logger == nil {
		s.Logger = logger.NewLogger("bus")
	}
	return s
}

// Send publishes m on the subject derived from its destination.
func (s *NATSSession) Send(m OutboundMessage) error {
	if m == nil {
		return ErrUnsupportedMessage
	}
	if s.conn == nil || s.conn.IsClosed() {
		return ErrNotConnected
	}
	dest := m.Destination()
	if dest == nil || dest.Name() == "" {
		return ErrNoDestination
	}
	subject := SubjectForTopic(dest.Name())

	switch mode := m.DeliveryMode(); mode {
	case DeliveryModeDirect:
		if err := s.conn.Publish(subject, m.BinaryAttachment()); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
	case DeliveryModeNonPersistent:
		if err := s.conn.Publish(subject, m.BinaryAttachment()); err != nil {
			return fmt.Errorf("publish %s: %w", subject, err)
		}
		if err := s.conn.FlushTimeout(s.flushTimeout); err != nil {
			return fmt.Errorf("flush %s: %w", subject, err)
		}
	case DeliveryModePersistent:
		if s.js == nil {
			return ErrPersistenceUnavailable
		}
		ack, err := s.js.Publish(subject, m.BinaryAttachment())
		if err != nil {
			return fmt.Errorf("jetstream publish %s: %w", subject, err)
		}
		s.Logger.Debugf("Stored %s in stream %s at seq %d", subject, ack.Stream, ack.Sequence)
	default:
		return fmt.Errorf("bus: unknown delivery mode %d", mode)
	}
	return nil
}

// ConnectOptions configures Connect.
type ConnectOptions struct {
	URL             string
	Name            string
	MaxReconnects   int
	ReconnectWait   time.Duration
	EnableJetStream bool
}

// Connect dials NATS and, when asked, obtains a JetStream context. A JetStream
// failure is logged and the connection is still returned.
func Connect(opts ConnectOptions, log *logger.Logger) (*nats.Conn, nats.JetStreamContext, error) {
	url := opts.URL
	if url == "" {
		url = nats.DefaultURL
	}
	log.Infof("Connecting to NATS at %s", url)
	nc, err := nats.Connect(url,
		nats.Name(opts.Name),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("Disconnected from NATS: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("Reconnected to NATS at %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	log.Info("Successfully connected to NATS")

	if !opts.EnableJetStream {
		return nc, nil, nil
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Errorf("Error getting JetStream context: %v", err)
		log.Warn("Running without JetStream. Persistent delivery will be unavailable.")
		return nc, nil, nil
	}
	return nc, js, nil
}

type streamManager interface {
	StreamInfo(stream string, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// EnsureStreams creates or updates the streams in defs. It keeps going after
// a failure and returns the first error seen.
func EnsureStreams(js streamManager, defs []StreamDef, log *logger.Logger) error {
	var firstErr error
	for _, s := range defs {
		cfg := &nats.StreamConfig{
			Name:     s.Name,
			Subjects: s.Subjects,
			Storage:  nats.FileStorage,
			MaxAge:   streamRetention,
		}
		if _, err := js.StreamInfo(cfg.Name); err != nil {
			if _, err := js.AddStream(cfg); err != nil {
				log.Errorf("Error creating stream %s: %v", s.Name, err)
				if firstErr == nil {
					firstErr = fmt.Errorf("create stream %s: %w", s.Name, err)
				}
				continue
			}
			log.Infof("Created stream: %s", s.Name)
			continue
		}
		if _, err := js.UpdateStream(cfg); err != nil {
			log.Errorf("Error updating stream %s: %v", s.Name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("update stream %s: %w", s.Name, err)
			}
			continue
		}
		log.Infof("Updated stream: %s", s.Name)
	}
	return firstErr
}
