// internal/cli/root.go
// Cobra commands for the troubleflipper command line client.
package cli

import (
	"fmt"
	"os"

	"github.com/erilali/troubleflipper/internal/bus"
	"github.com/erilali/troubleflipper/internal/config"
	"github.com/erilali/troubleflipper/internal/logger"
	"github.com/erilali/troubleflipper/internal/message"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"
)

// app is the state shared by every subcommand once the root has run.
type app struct {
	configPath string
	persistent bool

	cfg     config.Config
	log     *logger.Logger
	conn    *nats.Conn
	session bus.Session
	client  bus.Client

	// connect is swapped out in tests.
	connect func(a *app) error
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd(&app{connect: connectNATS}).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "troubleflipper",
		Short: "Command line client for the troubleflipper tournament",
		Long: `troubleflipper talks to the tournament server over NATS.

Topics use slashes (user/<clientId>, team/<teamId>) and are mapped to NATS
subjects by replacing "/" with ".".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if a.persistent {
				cfg.EnableJetStream = true
			}
			a.cfg = cfg
			logger.InitLogger(cfg.Log)
			a.log = logger.NewLogger("cli").WithField("client_id", cfg.ClientID)
			return a.connect(a)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "troubleflipper.json", "path to the JSON config file")
	root.PersistentFlags().BoolVar(&a.persistent, "persistent", false, "publish with guaranteed (JetStream) delivery")

	root.AddCommand(
		newRegisterCmd(a),
		newStartCmd(a),
		newTeamCmd(a),
		newListenCmd(a),
	)
	return root
}

func connectNATS(a *app) error {
	nc, js, err := bus.Connect(bus.ConnectOptions{
		URL:             a.cfg.NatsURL,
		Name:            a.cfg.ClientName,
		MaxReconnects:   a.cfg.MaxReconnects,
		ReconnectWait:   a.cfg.ReconnectWait(),
		EnableJetStream: a.cfg.EnableJetStream,
	}, logger.NewLogger("bus"))
	if err != nil {
		return err
	}
	if a.persistent {
		if js == nil {
			nc.Close()
			return bus.ErrPersistenceUnavailable
		}
		if err := bus.EnsureStreams(js, bus.Streams, a.log); err != nil {
			a.log.Warnf("Continuing with incomplete streams: %v", err)
		}
	}
	a.conn = nc
	a.session = bus.NewNATSSession(nc, js, logger.NewLogger("bus"))
	a.client = bus.NATSClient{}
	return nil
}

func (a *app) close() {
	if a.conn == nil {
		return
	}
	if err := a.conn.Drain(); err != nil {
		a.log.Warnf("Error draining NATS connection: %v", err)
	}
}

func (a *app) publish(topic string, msg message.Message) error {
	opts := []message.Option{message.WithLogger(logger.NewLogger("messaging"))}
	if a.persistent {
		opts = append(opts, message.WithDeliveryMode(bus.DeliveryModePersistent))
	}
	if err := message.PublishMessageToTopic(topic, msg, a.session, a.client, opts...); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	a.log.Infof("Published %s to %s", msg.Kind(), topic)
	return nil
}
