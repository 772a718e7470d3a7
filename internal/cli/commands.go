package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/erilali/troubleflipper/internal/bus"
	"github.com/erilali/troubleflipper/internal/config"
	"github.com/erilali/troubleflipper/internal/logger"
	"github.com/erilali/troubleflipper/internal/message"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

var errNoConnection = errors.New("not connected to NATS")

func newRegisterCmd(a *app) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "register [username]",
		Short: "Register a username with the tournament",
		Long: `Publishes a users message with the given username (or the configured one)
and this client's id. With --wait the command subscribes to user/<clientId>
first and reports the server's acknowledgement.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			username := a.cfg.Username
			if len(args) == 1 {
				username = args[0]
			}
			if !config.ValidUsername(username) {
				return fmt.Errorf("invalid username %q: must be 3-20 characters, alphanumeric and underscore only", username)
			}
			msg := message.NewUsersMessage(username, a.cfg.ClientID)

			if wait <= 0 {
				return a.publish(message.TopicUsers, msg)
			}

			if a.conn == nil {
				return errNoConnection
			}
			sub, err := a.conn.SubscribeSync(bus.SubjectForTopic(message.UserTopic(a.cfg.ClientID)))
			if err != nil {
				return fmt.Errorf("subscribe for acknowledgement: %w", err)
			}
			defer sub.Unsubscribe()

			if err := a.publish(message.TopicUsers, msg); err != nil {
				return err
			}
			reply, err := sub.NextMsg(wait)
			if err != nil {
				return fmt.Errorf("waiting for acknowledgement: %w", err)
			}
			parsed, err := message.ParseBusMessage(reply, message.WithLogger(a.log))
			if err != nil {
				return err
			}
			return reportAck(cmd.OutOrStdout(), parsed)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 0, "wait this long for the server acknowledgement")
	return cmd
}

func reportAck(w io.Writer, msg message.Message) error {
	ack, ok := msg.(*message.UsersAckMessage)
	if !ok {
		return fmt.Errorf("unexpected reply %T", msg)
	}
	if ack.IsFailure() {
		fmt.Fprintf(w, "registration of %s rejected (%s)\n", ack.Username, ack.Result)
		return errors.New("registration rejected")
	}
	fmt.Fprintf(w, "registered %s as %s\n", ack.Username, ack.ClientID)
	return nil
}

func newStartCmd(a *app) *cobra.Command {
	var stop bool

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Ask the server to build teams and start the tournament",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.publish(message.TopicTournaments, tournamentsMessage(stop))
		},
	}
	cmd.Flags().BoolVar(&stop, "stop", false, "stop the running games instead")
	return cmd
}

func tournamentsMessage(stop bool) *message.TournamentsMessage {
	msg := message.NewTournamentsMessage()
	if stop {
		msg.Action = message.ActionStopGames
	}
	return msg
}

func newTeamCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "team <team-id> <puzzle-json>",
		Short: "Publish a puzzle assignment to team/<team-id>",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := teamsMessage(args[1])
			if err != nil {
				return err
			}
			return a.publish(message.TeamTopic(args[0]), msg)
		},
	}
}

func teamsMessage(puzzle string) (*message.TeamsMessage, error) {
	raw := json.RawMessage(puzzle)
	if !json.Valid(raw) {
		return nil, fmt.Errorf("puzzle is not valid JSON: %s", puzzle)
	}
	return &message.TeamsMessage{Puzzle: raw}, nil
}

func newListenCmd(a *app) *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "listen [topic...]",
		Short: "Print messages received on the given topics",
		Long: `Subscribes to each topic (default user/<clientId>) and prints every decoded
message as JSON until interrupted. NATS wildcards work on the mapped subject,
so "team/>" receives all team updates.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.conn == nil {
				return errNoConnection
			}
			topics := args
			if len(topics) == 0 {
				topics = []string{message.UserTopic(a.cfg.ClientID)}
			}

			opts := []message.Option{message.WithLogger(logger.NewLogger("messaging"))}
			if strict {
				opts = append(opts, message.WithStrictFields())
			}
			handler := printHandler(cmd.OutOrStdout(), a.log, opts...)

			for _, topic := range topics {
				subject := bus.SubjectForTopic(topic)
				sub, err := a.conn.Subscribe(subject, handler)
				if err != nil {
					return fmt.Errorf("subscribe %s: %w", subject, err)
				}
				defer sub.Unsubscribe()
				a.log.Infof("Listening on %s", topic)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "reject payloads with unknown fields")
	return cmd
}

// printHandler decodes each delivery and writes it as one JSON line.
func printHandler(w io.Writer, log *logger.Logger, opts ...message.Option) nats.MsgHandler {
	return func(m *nats.Msg) {
		msg, err := message.ParseBusMessage(m, opts...)
		if err != nil {
			log.Errorf("Dropping message on %s: %v", m.Subject, err)
			return
		}
		if msg == nil {
			return
		}
		line, err := json.Marshal(struct {
			Topic   string          `json:"topic"`
			Kind    string          `json:"kind"`
			Message message.Message `json:"message"`
		}{bus.TopicForSubject(m.Subject), msg.Kind().String(), msg})
		if err != nil {
			log.Errorf("Error encoding message from %s: %v", m.Subject, err)
			return
		}
		fmt.Fprintln(w, string(line))
	}
}
