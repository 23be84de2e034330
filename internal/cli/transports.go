package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	transportpkg "github.com/drblury/msgkit/transport"
)

// NewTransportsCmd lists the registered transports and what they support.
func NewTransportsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "transports",
		Short: "List the available transports and their capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tQUEUE\tTOPIC\tACK\tNACK\tORDERED\tPERSISTENT\tPENDING")
			for _, name := range transportpkg.Names() {
				caps := transportpkg.GetCapabilities(name)
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					name,
					yesNo(caps.SupportsQueue),
					yesNo(caps.SupportsTopic),
					yesNo(caps.SupportsAck),
					yesNo(caps.SupportsNack),
					yesNo(caps.SupportsOrdering),
					yesNo(caps.Persistent),
					yesNo(caps.SupportsPendingCount),
				)
			}
			return w.Flush()
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
