package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/drblury/msgkit/internal/runtime/listener"
)

type heapstalkOptions struct {
	destination string
	max         int64
	sentinel    string
}

// NewHeapstalkCmd creates the heapstalk command.
func NewHeapstalkCmd(root *rootOptions) *cobra.Command {
	opts := &heapstalkOptions{}
	cmd := &cobra.Command{
		Use:   "heapstalk",
		Short: "Keep every received message in memory and log heap usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHeapstalk(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.destination, "destination", "i", "", "destination name")
	cmd.Flags().Int64VarP(&opts.max, "max-messages", "n", 0, "stop after this many messages (0 = unlimited)")
	cmd.Flags().StringVar(&opts.sentinel, "sentinel", listener.DefaultHeapstalkSentinel, "stop when a text message equals this value")
	_ = cmd.MarkFlagRequired("destination")

	return cmd
}

func runHeapstalk(cmd *cobra.Command, root *rootOptions, opts *heapstalkOptions) error {
	ctx, stop := signalContext(cmd)
	defer stop()

	s, err := openSession(ctx, cmd, root, opts.destination, "")
	if err != nil {
		return err
	}
	defer s.Close()

	return s.run(ctx, func(ctx context.Context) error {
		return s.listen(ctx, s.svc.NewHeapstalk(), opts.max, opts.sentinel)
	})
}
