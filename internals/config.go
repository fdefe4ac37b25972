package internals

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel   string                    `yaml:"log_level"`
	In         map[string]map[string]any `yaml:"in"`
	DefaultOut []string                  `yaml:"default_out"`
	Out        map[string]map[string]any `yaml:"out"`
}

func (config *Config) LoadFromYaml(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cannot find config file %s - UID %d: %w", path, os.Getuid(), err)
	}
	if err = yaml.Unmarshal(content, config); err != nil {
		return fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return config.Validate()
}

func (config *Config) Validate() error {
	for name, section := range config.In {
		if _, ok := section["driver"].(string); !ok {
			return fmt.Errorf("in %s: missing driver", name)
		}
	}
	for name, section := range config.Out {
		if _, ok := section["driver"].(string); !ok {
			return fmt.Errorf("out %s: missing driver", name)
		}
	}
	for _, name := range config.DefaultOut {
		if _, ok := config.Out[name]; !ok {
			return fmt.Errorf("default_out references unknown out %s", name)
		}
	}
	_, err := config.Level()
	return err
}

// Level parses log_level, defaulting to info.
func (config *Config) Level() (zerolog.Level, error) {
	if config.LogLevel == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log_level %s: %w", config.LogLevel, err)
	}
	return level, nil
}

// PublisherName returns name when set, else the first default_out entry.
func (config *Config) PublisherName(name string) (string, error) {
	if name != "" {
		if _, ok := config.Out[name]; !ok {
			return "", fmt.Errorf("invalid publisher name: %s", name)
		}
		return name, nil
	}
	if len(config.DefaultOut) == 0 {
		return "", fmt.Errorf("no publisher selected and default_out is empty")
	}
	return config.DefaultOut[0], nil
}
