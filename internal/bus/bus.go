// internal/bus/bus.go
// The slice of a pub/sub client API that the messaging layer depends on.
package bus

import "errors"

// DeliveryMode selects the broker quality of service for a single message.
type DeliveryMode int

const (
	// DeliveryModeDirect is best effort and never persisted.
	DeliveryModeDirect DeliveryMode = iota
	// DeliveryModePersistent is stored by the broker before it is acknowledged.
	DeliveryModePersistent
	// DeliveryModeNonPersistent is acknowledged by the broker but kept in memory only.
	DeliveryModeNonPersistent
)

func (m DeliveryMode) String() string {
	switch m {
	case DeliveryModeDirect:
		return "direct"
	case DeliveryModePersistent:
		return "persistent"
	case DeliveryModeNonPersistent:
		return "non_persistent"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected           = errors.New("bus: session is not connected")
	ErrPersistenceUnavailable = errors.New("bus: guaranteed delivery requested but no JetStream context")
	ErrUnsupportedMessage     = errors.New("bus: message was not created by this client")
	ErrNoDestination          = errors.New("bus: message has no destination")
)

// Destination is a topic address.
type Destination interface {
	Name() string
}

// OutboundMessage is a message under construction, created by a Client.
type OutboundMessage interface {
	SetDestination(d Destination)
	SetBinaryAttachment(payload []byte)
	SetDeliveryMode(mode DeliveryMode)

	Destination() Destination
	BinaryAttachment() []byte
	DeliveryMode() DeliveryMode
}

// Client is the factory half of a bus API.
type Client interface {
	CreateMessage() OutboundMessage
	CreateTopicDestination(topic string) Destination
}

// Session is a live connection that can send messages. Send may fail; callers
// own the retry policy.
type Session interface {
	Send(m OutboundMessage) error
}

// Topic is the Destination used by every client in this package.
type Topic string

func (t Topic) Name() string { return string(t) }

// Message is a plain OutboundMessage implementation.
type Message struct {
	dest    Destination
	payload []byte
	mode    DeliveryMode
}

func (m *Message) SetDestination(d Destination)       { m.dest = d }
func (m *Message) SetBinaryAttachment(payload []byte) { m.payload = payload }
func (m *Message) SetDeliveryMode(mode DeliveryMode)  { m.mode = mode }
func (m *Message) Destination() Destination           { return m.dest }
func (m *Message) BinaryAttachment() []byte           { return m.payload }
func (m *Message) DeliveryMode() DeliveryMode         { return m.mode }
