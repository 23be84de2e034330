package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute builds and runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd assembles the command tree. Settings are shared by every
// subcommand through the returned command's persistent flags.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	opts := &rootOptions{v: v}

	rootCmd := &cobra.Command{
		Use:   "msgkit",
		Short: "Send, receive and load test messages on a message broker",
		Long: `msgkit is a set of tools for producing and consuming messages on a
queue or topic. Connection factories and destinations are looked up by
logical name in a jndi.properties style file, so the same commands work
against Kafka, RabbitMQ, NATS, Redis, SQL databases, AWS SNS/SQS, HTTP,
a local file or an in-memory channel.

Every outbound message carries provenance metadata: app, user, host,
payload size, message type and a correlation id.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.bind(cmd.Root().PersistentFlags())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringP("jndi", "j", "", "naming properties file (default: ./jndi.properties)")
	flags.StringP("connection-factory", "c", DefaultConnectionFactory, "connection factory name")
	flags.String("log-level", "info", "log level (trace, debug, info, warn, error)")
	flags.Int("metrics-port", 0, "port for /metrics and /api/status (0 disables)")
	flags.String("app", "", "app name stamped on outbound messages")

	rootCmd.AddCommand(
		NewSendCmd(opts),
		NewBlastCmd(opts),
		NewReceiveCmd(opts),
		NewHeapstalkCmd(opts),
		NewTransportsCmd(),
		NewConfigCmd(opts),
		NewVersionCmd(),
	)

	return rootCmd
}
