package broker

import (
	"fmt"
	"time"
)

// Settings is the connection part of a driver configuration section.
// Durations are written the time.ParseDuration way ("5s").
type Settings struct {
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	VirtualHost       string `json:"vhost"`
	ConnectionTimeout string `json:"connection_timeout"`
	Heartbeat         string `json:"heartbeat"`
}

func (s Settings) ConnectionConfig() (ConnectionConfig, error) {
	config := ConnectionConfig{
		Host:        s.Host,
		Port:        s.Port,
		Username:    s.Username,
		Password:    s.Password,
		VirtualHost: s.VirtualHost,
	}
	var err error
	if s.ConnectionTimeout != "" {
		if config.ConnectionTimeout, err = time.ParseDuration(s.ConnectionTimeout); err != nil {
			return config, fmt.Errorf("invalid connection_timeout: %w", err)
		}
	}
	if s.Heartbeat != "" {
		if config.Heartbeat, err = time.ParseDuration(s.Heartbeat); err != nil {
			return config, fmt.Errorf("invalid heartbeat: %w", err)
		}
	}
	return config.WithDefaults(), nil
}
