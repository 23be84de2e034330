package cli

import (
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	configpkg "github.com/drblury/msgkit/internal/runtime/config"
	"github.com/drblury/msgkit/internal/runtime/naming"
)

type configDocument struct {
	Source       string             `yaml:"source"`
	Loaded       bool               `yaml:"loaded"`
	Settings     configpkg.Config   `yaml:"settings"`
	Destinations []destinationEntry `yaml:"destinations,omitempty"`
}

type destinationEntry struct {
	Name     string `yaml:"name"`
	Physical string `yaml:"physical"`
	Kind     string `yaml:"kind"`
}

// NewConfigCmd prints the resolved connection factory with credentials
// redacted.
func NewConfigCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved connection factory and destinations as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := naming.Load(root.jndi())
			if err != nil {
				return err
			}
			conf, err := names.ResolveConnectionFactory(root.connectionFactory())
			if err != nil {
				return err
			}
			if app := root.app(); app != "" {
				conf.AppName = app
			}
			conf.MetricsPort = root.metricsPort()

			doc := configDocument{
				Source:   names.Path(),
				Loaded:   names.Loaded(),
				Settings: conf.Redacted(),
			}
			for _, d := range names.Destinations() {
				doc.Destinations = append(doc.Destinations, destinationEntry{Name: d.Name, Physical: d.Physical, Kind: d.Kind})
			}
			sort.Slice(doc.Destinations, func(i, j int) bool {
				return doc.Destinations[i].Name < doc.Destinations[j].Name
			})

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		},
	}
}
