package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/drblury/msgkit/internal/runtime/envelope"
	"github.com/drblury/msgkit/internal/runtime/producer"
)

type sendOptions struct {
	destination   string
	file          string
	fifo          string
	correlationID string
	encoding      string
}

// NewSendCmd creates the send command.
func NewSendCmd(root *rootOptions) *cobra.Command {
	opts := &sendOptions{}
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a file, stdin or the lines of a fifo as text messages",
		Long: `Send publishes text messages on a destination.

With -p the named pipe is followed until interrupted and every chunk of
complete lines becomes one message. With -f the whole file is sent as one
message. Otherwise stdin is read to the end and sent as one message.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.destination, "destination", "o", "", "destination name")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file to send")
	cmd.Flags().StringVarP(&opts.fifo, "fifo", "p", "", "named pipe to follow")
	cmd.Flags().StringVarP(&opts.correlationID, "correlation-id", "i", "", "correlation id (generated when empty)")
	cmd.Flags().StringVarP(&opts.encoding, "encoding", "e", "", "character encoding of the input file (default UTF-8)")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}

func runSend(cmd *cobra.Command, root *rootOptions, opts *sendOptions) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := openSession(ctx, cmd, root, opts.destination, opts.encoding)
	if err != nil {
		return err
	}
	defer s.Close()

	pipeline, err := s.svc.Pipeline(s.dest.Physical, envelope.NewProvenance(s.conf.AppName, opts.correlationID))
	if err != nil {
		return err
	}

	return s.run(ctx, func(ctx context.Context) error {
		switch {
		case opts.fifo != "":
			t, err := s.svc.NewTailer(pipeline)
			if err != nil {
				return err
			}
			if err := t.Tail(ctx, opts.fifo); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		case opts.file != "":
			text, err := producer.LoadTextFile(opts.file, s.conf.Encoding)
			if err != nil {
				return err
			}
			return pipeline.SendText(ctx, text, envelope.TypeFile)
		default:
			text, err := producer.ReadAll(cmd.InOrStdin())
			if err != nil {
				return err
			}
			return pipeline.SendText(ctx, text, envelope.TypeStdin)
		}
	})
}
