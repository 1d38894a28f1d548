package bridge

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	yaml "gopkg.in/yaml.v2"
)

type EntityTypeConfig struct {
	Type       string   `yaml:"type" toml:"type"`
	IDPattern  string   `yaml:"idPattern" toml:"idPattern"`
	Watch      bool     `yaml:"watch" toml:"watch"`
	Attributes []string `yaml:"attributes" toml:"attributes"`
}

type BrokerConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
	Tenant   string `yaml:"tenant" toml:"tenant"`
	Debug    bool   `yaml:"debug" toml:"debug"`
	// Discover registers every type the broker reports, in addition to the configured ones
	Discover *bool `yaml:"discover" toml:"discover"`
}

func (b BrokerConfig) DiscoveryEnabled() bool {
	return b.Discover == nil || *b.Discover
}

type NotificationConfig struct {
	Endpoint string `yaml:"endpoint" toml:"endpoint"`
}

type Config struct {
	Broker        BrokerConfig       `yaml:"broker" toml:"broker"`
	Notifications NotificationConfig `yaml:"notifications" toml:"notifications"`
	EntityTypes   []EntityTypeConfig `yaml:"entityTypes" toml:"entityTypes"`
}

// Watched returns the entity types whose entities should be kept in the state
func (cfg *Config) Watched() []EntityTypeConfig {
	watched := []EntityTypeConfig{}
	for _, et := range cfg.EntityTypes {
		if et.Watch {
			watched = append(watched, et)
		}
	}
	return watched
}

type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatTOML ConfigFormat = "toml"
)

// FormatOf picks the configuration format from a file name. Anything that
// is not a .toml file is read as yaml.
func FormatOf(path string) ConfigFormat {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// LoadConfiguration reads a yaml configuration
func LoadConfiguration(data io.Reader) (*Config, error) {
	return LoadConfigurationAs(FormatYAML, data)
}

func LoadConfigurationAs(format ConfigFormat, data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}

	switch format {
	case FormatTOML:
		_, err = toml.Decode(string(buf), cfg)
	case FormatYAML, "":
		err = yaml.Unmarshal(buf, cfg)
	default:
		err = fmt.Errorf("unsupported configuration format %q", format)
	}

	if err != nil {
		return nil, err
	}

	return cfg, nil
}
