package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/drblury/msgkit/internal/runtime/naming"
)

// DefaultConnectionFactory is looked up when -c is not given.
const DefaultConnectionFactory = "ConnectionFactory"

// rootOptions resolves the global settings. Flags win over MSGKIT_*
// environment variables, which win over the flag defaults.
type rootOptions struct {
	v *viper.Viper
}

func (o *rootOptions) bind(flags *pflag.FlagSet) error {
	o.v.SetEnvPrefix(naming.EnvPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	o.v.AutomaticEnv()

	for _, name := range []string{"jndi", "connection-factory", "log-level", "metrics-port", "app"} {
		if err := o.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

func (o *rootOptions) jndi() string              { return o.v.GetString("jndi") }
func (o *rootOptions) connectionFactory() string { return o.v.GetString("connection-factory") }
func (o *rootOptions) logLevel() string          { return o.v.GetString("log-level") }
func (o *rootOptions) metricsPort() int          { return o.v.GetInt("metrics-port") }
func (o *rootOptions) app() string               { return o.v.GetString("app") }
