package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/erilali/troubleflipper/internal/bus"
	"github.com/erilali/troubleflipper/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	messages     int
	destinations []string
}

func (c *stubClient) CreateMessage() bus.OutboundMessage {
	c.messages++
	return &bus.Message{}
}

func (c *stubClient) CreateTopicDestination(topic string) bus.Destination {
	c.destinations = append(c.destinations, topic)
	return bus.Topic(topic)
}

type stubSession struct {
	err  error
	sent []bus.OutboundMessage
}

func (s *stubSession) Send(m bus.OutboundMessage) error {
	s.sent = append(s.sent, m)
	return s.err
}

func TestPublishMessageToTopic_NilSessionIsNoop(t *testing.T) {
	client := &stubClient{}

	err := PublishMessageToTopic("team/1", map[string]int{"a": 1}, nil, client, WithLogger(logger.Nop()))
	assert.NoError(t, err)

	var typedNil *stubSession
	err = PublishMessageToTopic("team/1", map[string]int{"a": 1}, typedNil, client, WithLogger(logger.Nop()))
	assert.NoError(t, err)

	assert.Zero(t, client.messages)
	assert.Empty(t, client.destinations)
}

func TestPublishMessageToTopic_RejectsNonObjects(t *testing.T) {
	var nilTeams *TeamsMessage
	inputs := []any{"not-an-object", 42, 3.5, true, nil, nilTeams, []int{1, 2}}

	for _, in := range inputs {
		var buf bytes.Buffer
		session := &stubSession{}
		client := &stubClient{}

		err := PublishMessageToTopic("team/1", in, session, client, WithLogger(logger.New(&buf, "messaging")))

		assert.NoError(t, err, "%#v", in)
		assert.Empty(t, session.sent, "%#v", in)
		assert.Zero(t, client.messages, "%#v", in)
		assert.Contains(t, buf.String(), "Invalid type for parameter", "%#v", in)
	}
}

func TestPublishMessageToTopic_SendsDirectJSON(t *testing.T) {
	session := &stubSession{}
	client := &stubClient{}

	err := PublishMessageToTopic("team/1", map[string]string{"puzzle": "X"}, session, client, WithLogger(logger.Nop()))
	require.NoError(t, err)

	require.Len(t, session.sent, 1)
	sent := session.sent[0]
	assert.JSONEq(t, `{"puzzle":"X"}`, string(sent.BinaryAttachment()))
	assert.Equal(t, bus.DeliveryModeDirect, sent.DeliveryMode())
	assert.Equal(t, "team/1", sent.Destination().Name())
	assert.Equal(t, 1, client.messages)
	assert.Equal(t, []string{"team/1"}, client.destinations)
}

func TestPublishMessageToTopic_AcceptsShapesAndPointers(t *testing.T) {
	teams, err := NewTeamsMessage("X")
	require.NoError(t, err)

	for _, in := range []any{teams, *teams, NewTournamentsMessage(), struct{ A int }{1}} {
		session := &stubSession{}
		require.NoError(t, PublishMessageToTopic("tournaments", in, session, &stubClient{}, WithLogger(logger.Nop())))
		assert.Len(t, session.sent, 1, "%#v", in)
	}
}

func TestPublishMessageToTopic_DeliveryModeOverride(t *testing.T) {
	session := &stubSession{}

	err := PublishMessageToTopic("users", NewUsersMessage("alice", "c1"), session, &stubClient{},
		WithLogger(logger.Nop()), WithDeliveryMode(bus.DeliveryModePersistent))
	require.NoError(t, err)

	require.Len(t, session.sent, 1)
	assert.Equal(t, bus.DeliveryModePersistent, session.sent[0].DeliveryMode())
}

func TestPublishMessageToTopic_SendErrorPropagates(t *testing.T) {
	boom := errors.New("connection reset")
	session := &stubSession{err: boom}

	err := PublishMessageToTopic("users", NewUsersMessage("alice", "c1"), session, &stubClient{}, WithLogger(logger.Nop()))
	assert.Equal(t, boom, err)
}

func TestPublishMessageToTopic_MarshalError(t *testing.T) {
	session := &stubSession{}
	err := PublishMessageToTopic("users", map[string]any{"bad": make(chan int)}, session, &stubClient{}, WithLogger(logger.Nop()))
	require.Error(t, err)
	assert.Empty(t, session.sent)
}

func TestPublishThenParse_RoundTrip(t *testing.T) {
	session := &stubSession{}
	sent := NewUsersMessage("alice", "c1")

	require.NoError(t, PublishMessageToTopic(TopicUsers, sent, session, bus.NATSClient{}, WithLogger(logger.Nop())))
	require.Len(t, session.sent, 1)

	msg, err := ParseReceivedMessage(UserTopic("c1"), session.sent[0].BinaryAttachment(), WithLogger(logger.Nop()))
	require.NoError(t, err)

	got := msg.(*UsersAckMessage)
	assert.Equal(t, sent.Username, got.Username)
	assert.Equal(t, sent.ClientID, got.ClientID)
	assert.Empty(t, got.Result)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(session.sent[0].BinaryAttachment(), &raw))
	assert.Equal(t, map[string]any{"username": "alice", "clientId": "c1"}, raw)
}
