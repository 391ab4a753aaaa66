// Package config resolves the daemon settings from defaults, an optional
// YAML file and command-line flags, in that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/intercom-monitor/internal/gpio"
	"github.com/sweeney/intercom-monitor/internal/pulse"
	"github.com/sweeney/intercom-monitor/internal/telnet"
)

// Config holds every setting the daemon consumes.
type Config struct {
	Chip     string        `yaml:"chip"`
	Pin      int           `yaml:"pin"`
	Port     int           `yaml:"port"`
	Sample   time.Duration `yaml:"sample"`
	Broker   string        `yaml:"broker"`
	ClientID string        `yaml:"client_id"`
	HTTPAddr string        `yaml:"http"`
	Tag      string        `yaml:"tag"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Chip:     gpio.DefaultChip,
		Pin:      gpio.DefaultPin,
		Port:     telnet.DefaultPort,
		Sample:   pulse.DefaultInterval,
		ClientID: "intercom-monitor",
		Tag:      "intercom",
	}
}

// Load reads a YAML file over base. Keys missing from the file keep their
// base values.
func Load(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the values the core relies on.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Sample <= 0 {
		errs = append(errs, fmt.Errorf("sample interval must be positive, got %v", c.Sample))
	}
	if c.Pin < 0 {
		errs = append(errs, fmt.Errorf("pin %d is negative", c.Pin))
	}
	if c.Chip == "" {
		errs = append(errs, errors.New("chip must be set"))
	}
	return errors.Join(errs...)
}

// TelnetAddr is the listen address for the telnet server.
func (c Config) TelnetAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Parse builds the configuration from args (without the program name).
// Flags given explicitly override the file named by --config.
func Parse(fs *flag.FlagSet, args []string) (Config, bool, error) {
	def := Default()
	path := fs.String("config", "", "YAML config file (optional)")
	chip := fs.String("chip", def.Chip, "GPIO chip name")
	pin := fs.Int("pin", def.Pin, "GPIO line offset of the intercom input")
	port := fs.Int("port", def.Port, "telnet port for the remote log viewer")
	sample := fs.Duration("sample", def.Sample, "line sampling interval")
	broker := fs.String("broker", def.Broker, `MQTT broker address ("" disables)`)
	clientID := fs.String("client-id", def.ClientID, "MQTT client ID")
	httpAddr := fs.String("http", def.HTTPAddr, `HTTP status address ("" disables)`)
	tag := fs.String("tag", def.Tag, "log tag prefixed to every line")
	printState := fs.Bool("print-state", false, "print the current line level and exit")

	if err := fs.Parse(args); err != nil {
		return def, false, err
	}

	cfg := def
	if *path != "" {
		var err error
		if cfg, err = Load(*path, def); err != nil {
			return def, false, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "chip":
			cfg.Chip = *chip
		case "pin":
			cfg.Pin = *pin
		case "port":
			cfg.Port = *port
		case "sample":
			cfg.Sample = *sample
		case "broker":
			cfg.Broker = *broker
		case "client-id":
			cfg.ClientID = *clientID
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "tag":
			cfg.Tag = *tag
		}
	})

	if err := cfg.Validate(); err != nil {
		return cfg, false, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, *printState, nil
}
