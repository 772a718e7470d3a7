package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/erilali/troubleflipper/internal/bus"
	"github.com/erilali/troubleflipper/internal/logger"
	"github.com/erilali/troubleflipper/internal/message"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSession struct {
	sent []bus.OutboundMessage
}

func (s *recordingSession) Send(m bus.OutboundMessage) error {
	s.sent = append(s.sent, m)
	return nil
}

func restoreLogging(t *testing.T) {
	t.Helper()
	prevLevel, prevLogger := zerolog.GlobalLevel(), zlog.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		zlog.Logger = prevLogger
	})
}

func runCLI(t *testing.T, args ...string) (*recordingSession, error) {
	t.Helper()
	restoreLogging(t)
	chdir(t, t.TempDir())
	t.Setenv("TF_CLIENT_ID", "c1")
	t.Setenv("NATS_URL", "")
	t.Setenv("TF_USERNAME", "")
	t.Setenv("TF_LOG_LEVEL", "error")
	t.Setenv("TF_ENABLE_JETSTREAM", "")

	session := &recordingSession{}
	a := &app{connect: func(a *app) error {
		a.session = session
		a.client = bus.NATSClient{}
		return nil
	}}
	cmd := newRootCmd(a)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--config", filepath.Join(t.TempDir(), "missing.json")}, args...))
	return session, cmd.Execute()
}

func decode(t *testing.T, m bus.OutboundMessage) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(m.BinaryAttachment(), &out))
	return out
}

func TestRegister_PublishesUsersMessage(t *testing.T) {
	session, err := runCLI(t, "register", "alice")
	require.NoError(t, err)

	require.Len(t, session.sent, 1)
	assert.Equal(t, message.TopicUsers, session.sent[0].Destination().Name())
	assert.Equal(t, bus.DeliveryModeDirect, session.sent[0].DeliveryMode())
	assert.Equal(t, map[string]any{"username": "alice", "clientId": "c1"}, decode(t, session.sent[0]))
}

func TestRegister_RejectsInvalidUsername(t *testing.T) {
	session, err := runCLI(t, "register", "a!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid username")
	assert.Empty(t, session.sent)
}

func TestRegister_WaitNeedsConnection(t *testing.T) {
	session, err := runCLI(t, "register", "alice", "--wait", "1s")
	assert.ErrorIs(t, err, errNoConnection)
	assert.Empty(t, session.sent)
}

func TestStart(t *testing.T) {
	session, err := runCLI(t, "start")
	require.NoError(t, err)
	require.Len(t, session.sent, 1)
	assert.Equal(t, message.TopicTournaments, session.sent[0].Destination().Name())
	assert.Equal(t, map[string]any{"action": "buildTeams"}, decode(t, session.sent[0]))

	session, err = runCLI(t, "start", "--stop")
	require.NoError(t, err)
	require.Len(t, session.sent, 1)
	assert.Equal(t, map[string]any{"action": "stopGames"}, decode(t, session.sent[0]))
}

func TestTeam(t *testing.T) {
	session, err := runCLI(t, "--persistent", "team", "7", `[{"index":1},{"index":0}]`)
	require.NoError(t, err)

	require.Len(t, session.sent, 1)
	sent := session.sent[0]
	assert.Equal(t, "team/7", sent.Destination().Name())
	assert.Equal(t, bus.DeliveryModePersistent, sent.DeliveryMode())
	assert.JSONEq(t, `{"puzzle":[{"index":1},{"index":0}]}`, string(sent.BinaryAttachment()))

	session, err = runCLI(t, "team", "7", `{not json`)
	require.Error(t, err)
	assert.Empty(t, session.sent)
}

func TestListen_NeedsConnection(t *testing.T) {
	_, err := runCLI(t, "listen")
	assert.ErrorIs(t, err, errNoConnection)
}

func TestReportAck(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, reportAck(&out, message.NewUsersAckMessage(message.ResultSuccess, "alice", "c1")))
	assert.Equal(t, "registered alice as c1\n", out.String())

	out.Reset()
	err := reportAck(&out, message.NewUsersAckMessage(message.ResultFailure, "alice", "c1"))
	assert.Error(t, err)
	assert.Contains(t, out.String(), "rejected (failure)")

	teams, _ := message.NewTeamsMessage("X")
	assert.Error(t, reportAck(&out, teams))
}

func TestPrintHandler(t *testing.T) {
	restoreLogging(t)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	var out, logs bytes.Buffer
	log := logger.New(&logs, "cli")
	handler := printHandler(&out, log, message.WithLogger(log))

	handler(&nats.Msg{Subject: "team.7", Data: []byte(`{"puzzle":"X"}`)})
	handler(&nats.Msg{Subject: "score.players", Data: []byte(`{}`)})
	handler(&nats.Msg{Subject: "user.c1", Data: []byte(`{`)})

	var line map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &line))
	assert.Equal(t, "team/7", line["topic"])
	assert.Equal(t, "teams", line["kind"])
	assert.Equal(t, map[string]any{"puzzle": "X"}, line["message"])

	assert.Contains(t, logs.String(), "Unexpected topic score/players")
	assert.Contains(t, logs.String(), "Dropping message on user.c1")
}
