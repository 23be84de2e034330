package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/drblury/msgkit/internal/runtime/listener"
)

type receiveOptions struct {
	destination string
	output      string
	max         int64
	encoding    string
	sentinel    string
	rotation    listener.Rotation
}

// NewReceiveCmd creates the receive command.
func NewReceiveCmd(root *rootOptions) *cobra.Command {
	opts := &receiveOptions{}
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Write received text messages to stdout or a file",
		Long: `Receive subscribes to a destination and writes every text message
followed by a newline. Binary and other payloads are reported with a notice
line instead.

The command exits with status 2 once -n messages have been received, and
with status 0 when a message equal to --sentinel (ignoring case) arrives or
on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReceive(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.destination, "destination", "i", "", "destination name")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().Int64VarP(&opts.max, "max-messages", "n", 0, "stop after this many messages (0 = unlimited)")
	cmd.Flags().StringVarP(&opts.encoding, "encoding", "e", "", "output character encoding (default UTF-8)")
	cmd.Flags().StringVar(&opts.sentinel, "sentinel", "", "stop when a text message equals this value")
	cmd.Flags().IntVar(&opts.rotation.MaxSizeMB, "rotate-max-size", 0, "rotate the output file at this size in megabytes")
	cmd.Flags().IntVar(&opts.rotation.MaxBackups, "rotate-max-backups", 0, "rotated files to keep")
	cmd.Flags().IntVar(&opts.rotation.MaxAgeDays, "rotate-max-age", 0, "days to keep rotated files")
	cmd.Flags().BoolVar(&opts.rotation.Compress, "rotate-compress", false, "gzip rotated files")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}

func runReceive(cmd *cobra.Command, root *rootOptions, opts *receiveOptions) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := openSession(ctx, cmd, root, opts.destination, opts.encoding)
	if err != nil {
		return err
	}
	defer s.Close()

	sink := func() (io.WriteCloser, error) { return nopWriteCloser{Writer: cmd.OutOrStdout()}, nil }
	if opts.output != "" {
		sink = listener.FileSink(opts.output, opts.rotation)
	}
	receiver := listener.NewReceiver(s.logger,
		listener.WithWriterFactory(sink),
		listener.WithEncoding(s.conf.Encoding),
	)

	return s.run(ctx, func(ctx context.Context) error {
		return s.listen(ctx, receiver, opts.max, opts.sentinel)
	})
}
