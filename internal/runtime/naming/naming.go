// Package naming resolves logical connection factory and destination names
// against a jndi.properties style file.
package naming

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/drblury/msgkit/internal/runtime/config"
	errspkg "github.com/drblury/msgkit/internal/runtime/errors"
)

// EnvPrefix namespaces environment overrides, for example
// MSGKIT_CONNECTIONFACTORY_LOCAL_URL.
const EnvPrefix = "MSGKIT"

// DefaultFile is read when no properties file is given.
const DefaultFile = "jndi.properties"

// Dynamic destination prefixes resolve without a properties entry.
const (
	DynamicQueuePrefix = "dynamicQueues/"
	DynamicTopicPrefix = "dynamicTopics/"
)

// Fallback credential keys applied to every connection factory.
const (
	keyPrincipal   = "java.naming.security.principal"
	keyCredentials = "java.naming.security.credentials"
)

// Destination is a resolved queue or topic.
type Destination struct {
	Name     string
	Physical string
	Kind     string
}

// IsTopic reports whether the destination broadcasts to every subscriber.
func (d Destination) IsTopic() bool { return d.Kind == config.KindTopic }

// Context looks names up in the loaded properties and the environment.
type Context struct {
	v      *viper.Viper
	path   string
	loaded bool
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("properties")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_", "/", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the properties file at path. A missing file is tolerated; only
// environment overrides and the channel transport are available then.
func Load(path string) (*Context, error) {
	if path == "" {
		path = DefaultFile
	}
	v := newViper()
	v.SetConfigFile(path)

	c := &Context{v: v, path: path}
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return nil, errspkg.NewConfigurationError("naming properties", path, err)
		}
		return c, nil
	}
	c.loaded = true
	return c, nil
}

// LoadReader reads properties from r.
func LoadReader(r io.Reader) (*Context, error) {
	v := newViper()
	if err := v.ReadConfig(r); err != nil {
		return nil, errspkg.NewConfigurationError("naming properties", "", err)
	}
	return &Context{v: v, loaded: true}, nil
}

// Loaded reports whether a properties file was found and parsed.
func (c *Context) Loaded() bool { return c.loaded }

// Path is the properties file this context was loaded from, if any.
func (c *Context) Path() string { return c.path }

// ResolveConnectionFactory builds the settings for the named factory. Without
// a properties file an unknown factory falls back to the in-memory channel
// transport.
func (c *Context) ResolveConnectionFactory(name string) (*config.Config, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errspkg.NewConfigurationError("connection factory", name, errspkg.ErrConnectionFactoryNotFound)
	}
	prefix := "connectionfactory." + strings.ToLower(name) + "."
	get := func(key string) string { return strings.TrimSpace(c.v.GetString(prefix + key)) }

	cfg := config.New()
	cfg.ConnectionFactory = name

	transportName := get("transport")
	if transportName == "" {
		if c.loaded {
			return nil, errspkg.NewConfigurationError("connection factory", name, errspkg.ErrConnectionFactoryNotFound)
		}
		return cfg, nil
	}

	cfg.Transport = strings.ToLower(transportName)
	cfg.URL = get("url")
	cfg.Brokers = splitList(get("brokers"))
	cfg.ClientID = get("clientid")
	cfg.ConsumerGroup = get("consumergroup")
	cfg.ListenAddress = get("listen")
	cfg.AWSRegion = get("region")
	cfg.AWSAccountID = get("accountid")
	cfg.AWSEndpoint = get("endpoint")
	cfg.Username = firstNonEmpty(get("username"), c.v.GetString(keyPrincipal))
	cfg.Password = firstNonEmpty(get("password"), c.v.GetString(keyCredentials))

	if err := cfg.Validate(); err != nil {
		return nil, errspkg.NewConfigurationError("connection factory", name, err)
	}
	return cfg, nil
}

// ResolveDestination looks up queue.<name>, then topic.<name>. The
// dynamicQueues/ and dynamicTopics/ prefixes name a physical destination
// directly.
func (c *Context) ResolveDestination(name string) (Destination, error) {
	switch {
	case strings.HasPrefix(name, DynamicQueuePrefix) && len(name) > len(DynamicQueuePrefix):
		return Destination{Name: name, Physical: strings.TrimPrefix(name, DynamicQueuePrefix), Kind: config.KindQueue}, nil
	case strings.HasPrefix(name, DynamicTopicPrefix) && len(name) > len(DynamicTopicPrefix):
		return Destination{Name: name, Physical: strings.TrimPrefix(name, DynamicTopicPrefix), Kind: config.KindTopic}, nil
	}

	key := strings.ToLower(strings.TrimSpace(name))
	if key != "" {
		if physical := strings.TrimSpace(c.v.GetString("queue." + key)); physical != "" {
			return Destination{Name: name, Physical: physical, Kind: config.KindQueue}, nil
		}
		if physical := strings.TrimSpace(c.v.GetString("topic." + key)); physical != "" {
			return Destination{Name: name, Physical: physical, Kind: config.KindTopic}, nil
		}
	}
	return Destination{}, errspkg.NewConfigurationError("destination", name, errspkg.ErrDestinationNotFound)
}

// Destinations lists every configured queue and topic name.
func (c *Context) Destinations() []Destination {
	var out []Destination
	for _, kind := range []string{config.KindQueue, config.KindTopic} {
		for name, physical := range c.v.GetStringMapString(kind) {
			out = append(out, Destination{Name: name, Physical: physical, Kind: kind})
		}
	}
	return out
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
