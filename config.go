// Copyright (C) 2024  wwhai
//
// This program is free software; you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation; either version 2 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License along
// with this program; if not, see <https://www.gnu.org/licenses/>.

package zaber

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the file format shared by zaberctl and applications embedding
// the package.
type Config struct {
	Serial    SerialConfig  `yaml:"serial"`
	Transport TransportFile `yaml:"transport"`
	Poll      PollFile      `yaml:"poll"`
	Devices   []DeviceFile  `yaml:"devices"`
	LogLevel  string        `yaml:"log_level"`
}

// TransportFile is the YAML form of TransportConfig.
type TransportFile struct {
	Timeout       time.Duration `yaml:"timeout"`
	MessageIDs    bool          `yaml:"message_ids"`
	Checksums     bool          `yaml:"checksums"`
	MaxLineLength int           `yaml:"max_line_length"`
}

// PollFile is the YAML form of PollConfig.
type PollFile struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
	Timeout     time.Duration `yaml:"timeout"`
}

// DeviceFile declares one device of the chain.
type DeviceFile struct {
	Address int    `yaml:"address"`
	Axes    int    `yaml:"axes"`
	Name    string `yaml:"name"`
}

// DefaultConfig returns a configuration for a single one-axis device at
// address 1 with factory serial settings.
func DefaultConfig() Config {
	tc := DefaultTransportConfig()
	pc := DefaultPollConfig()
	return Config{
		Serial: DefaultSerialConfig(),
		Transport: TransportFile{
			Timeout:       tc.Timeout,
			MaxLineLength: tc.MaxLineLength,
		},
		Poll: PollFile{
			Interval:    pc.Interval,
			MaxAttempts: pc.MaxAttempts,
			Timeout:     pc.Timeout,
		},
		Devices:  []DeviceFile{{Address: 1, Axes: 1}},
		LogLevel: "INFO",
	}
}

// LoadConfig reads a YAML file on top of DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("zaber: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
// Durations are written as Go duration strings, e.g. "250ms".
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("zaber: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks device addresses, axis counts and the log level.
func (c Config) Validate() error {
	if len(c.Devices) == 0 {
		return fmt.Errorf("zaber: config declares no devices")
	}
	seen := make(map[int]bool)
	for _, d := range c.Devices {
		if d.Address < 1 || d.Address > MaxDeviceAddress {
			return fmt.Errorf("zaber: config device address %d out of range 1-%d: %w", d.Address, MaxDeviceAddress, ErrInvalidDevice)
		}
		if seen[d.Address] {
			return fmt.Errorf("zaber: config device address %d declared twice: %w", d.Address, ErrInvalidDevice)
		}
		seen[d.Address] = true
		if d.Axes < 1 {
			return fmt.Errorf("zaber: config device %d needs at least one axis: %w", d.Address, ErrInvalidAxis)
		}
	}
	if c.Transport.Timeout < 0 || c.Poll.Timeout < 0 || c.Poll.Interval < 0 {
		return fmt.Errorf("zaber: config durations must not be negative")
	}
	if strings.TrimSpace(c.LogLevel) != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return fmt.Errorf("zaber: config: %w", err)
		}
	}
	return nil
}

// TransportConfig converts the file section, keeping defaults for zero values.
func (c Config) TransportConfig() TransportConfig {
	tc := DefaultTransportConfig()
	if c.Transport.Timeout > 0 {
		tc.Timeout = c.Transport.Timeout
	}
	if c.Transport.MaxLineLength > 0 {
		tc.MaxLineLength = c.Transport.MaxLineLength
	}
	tc.MessageIDs = c.Transport.MessageIDs
	tc.Checksums = c.Transport.Checksums
	return tc
}

func (c Config) PollConfig() PollConfig {
	return PollConfig{
		Interval:    c.Poll.Interval,
		MaxAttempts: c.Poll.MaxAttempts,
		Timeout:     c.Poll.Timeout,
	}
}
