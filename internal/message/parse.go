package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/erilali/troubleflipper/internal/bus"
	"github.com/nats-io/nats.go"
)

var errInvalidJSON = errors.New("invalid JSON")

// ParseError is returned when a received payload cannot be decoded.
type ParseError struct {
	Topic string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse message on topic %q: %v", e.Topic, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseReceivedMessage decodes payload according to the topic it arrived on.
// Topics under "user/" carry a *UsersAckMessage and topics under "team/" a
// *TeamsMessage. Any other topic is logged and yields (nil, nil).
//
// Only one message shape is expected per topic family. Keys that the shape
// does not know are ignored unless WithStrictFields is given.
func ParseReceivedMessage(topic string, payload []byte, opts ...Option) (Message, error) {
	o := newOptions(opts)

	if !json.Valid(payload) {
		return nil, &ParseError{Topic: topic, Err: errInvalidJSON}
	}

	var msg Message
	switch {
	case strings.HasPrefix(topic, UserTopicPrefix):
		msg = &UsersAckMessage{}
	case strings.HasPrefix(topic, TeamTopicPrefix):
		msg = &TeamsMessage{}
	default:
		o.log.Warnf("Unexpected topic %s", topic)
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(payload))
	if o.strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(msg); err != nil {
		return nil, &ParseError{Topic: topic, Err: err}
	}
	return msg, nil
}

// ParseBusMessage runs ParseReceivedMessage on a message delivered by NATS,
// translating its subject back into a slash topic.
func ParseBusMessage(m *nats.Msg, opts ...Option) (Message, error) {
	return ParseReceivedMessage(bus.TopicForSubject(m.Subject), m.Data, opts...)
}
