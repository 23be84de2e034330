package cli

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/drblury/msgkit/internal/runtime/blaster"
	"github.com/drblury/msgkit/internal/runtime/envelope"
	loggingpkg "github.com/drblury/msgkit/internal/runtime/logging"
	"github.com/drblury/msgkit/internal/runtime/producer"
)

type blastOptions struct {
	destination   string
	count         int
	size          int
	threads       int
	file          string
	correlationID string
}

// NewBlastCmd creates the blast command.
func NewBlastCmd(root *rootOptions) *cobra.Command {
	opts := &blastOptions{}
	cmd := &cobra.Command{
		Use:   "blast",
		Short: "Send one payload repeatedly and report throughput",
		Long: `Blast sends the same payload -m times and prints the elapsed time
every 100 messages.

The payload is the file given with -f, otherwise -s random characters,
otherwise stdin when -s is 0.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBlast(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.destination, "destination", "o", "", "destination name")
	cmd.Flags().IntVarP(&opts.count, "count", "m", 1000, "number of messages to send")
	cmd.Flags().IntVarP(&opts.size, "size", "s", 32, "random payload size in characters")
	cmd.Flags().IntVarP(&opts.threads, "threads", "t", 1, "sender threads (only 1 is supported)")
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file to use as payload")
	cmd.Flags().StringVarP(&opts.correlationID, "correlation-id", "i", "", "correlation id (generated when empty)")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}

// blastPayload picks the payload: file, then random text, then stdin.
func blastPayload(cmd *cobra.Command, opts *blastOptions, encoding string, out io.Writer) (string, envelope.MessageType, error) {
	switch {
	case opts.file != "":
		if cmd.Flags().Changed("size") {
			fmt.Fprintln(out, "Ignoring message size argument. Using input file.")
		}
		text, err := producer.LoadTextFile(opts.file, encoding)
		if err != nil {
			return "", "", err
		}
		fmt.Fprintf(out, "Input file size: %d\n", utf8.RuneCountInString(text))
		return text, envelope.TypeFile, nil
	case opts.size > 0:
		text := producer.RandomText(opts.size, nil)
		fmt.Fprintf(out, "Message size: %d\n", utf8.RuneCountInString(text))
		return text, envelope.TypeRandom, nil
	}
	text, err := producer.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", "", err
	}
	return text, envelope.TypeStdin, nil
}

func runBlast(cmd *cobra.Command, root *rootOptions, opts *blastOptions) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := openSession(ctx, cmd, root, opts.destination, "")
	if err != nil {
		return err
	}
	defer s.Close()

	out := cmd.OutOrStdout()
	payload, messageType, err := blastPayload(cmd, opts, s.conf.Encoding, out)
	if err != nil {
		return err
	}

	provenance := envelope.NewProvenance(s.conf.AppName, opts.correlationID)
	pipeline, err := s.svc.Pipeline(s.dest.Physical, provenance)
	if err != nil {
		return err
	}

	b := blaster.New(pipeline, out,
		blaster.WithPayload(payload, messageType),
		blaster.WithAppName(s.conf.AppName),
		blaster.WithCorrelationID(provenance.CorrelationID()),
		blaster.WithThreads(opts.threads),
		blaster.WithLogger(s.logger),
	)

	return s.run(ctx, func(ctx context.Context) error {
		fmt.Fprintf(out, "Sending %d messages...\n", opts.count)
		report, err := b.Run(ctx, opts.count)
		if report.Failed > 0 {
			s.logger.Info("Blast finished with send failures", loggingpkg.LogFields{
				"sent":   report.Sent,
				"failed": report.Failed,
			})
		}
		if err != nil && ctx.Err() != nil {
			return nil
		}
		return err
	})
}
