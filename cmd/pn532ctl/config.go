// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ZaparooProject/go-pn532-core"
	"github.com/ZaparooProject/go-pn532-core/detection"
	"github.com/ZaparooProject/go-pn532-core/polling"
)

// Config is the pn532ctl configuration file.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Detection DetectionConfig `yaml:"detection"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Polling   PollingConfig   `yaml:"polling"`
}

// DeviceConfig selects the reader. An empty path means auto-detect.
type DeviceConfig struct {
	Path      string        `yaml:"path"`
	Transport string        `yaml:"transport"`
	SPI       SPIConfig     `yaml:"spi"`
	Timeout   time.Duration `yaml:"timeout"`
}

// SPIConfig names the optional GPIO lines of an SPI reader.
type SPIConfig struct {
	ChipSelect string `yaml:"chip_select"`
	Reset      string `yaml:"reset"`
}

type DetectionConfig struct {
	Mode        string        `yaml:"mode"`
	Blocklist   []string      `yaml:"blocklist"`
	IgnorePaths []string      `yaml:"ignore_paths"`
	Timeout     time.Duration `yaml:"timeout"`
}

type PollingConfig struct {
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
	RemovalThreshold int           `yaml:"removal_threshold"`
	HardwareRetries  int           `yaml:"hardware_retries"`
}

// RedisConfig enables event publishing in watch mode when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	Key      string `yaml:"key"`
	Channel  string `yaml:"channel"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	poll := polling.DefaultConfig()
	det := detection.DefaultOptions()
	return Config{
		Device: DeviceConfig{Timeout: pn532.DefaultDeviceConfig().Timeout},
		Detection: DetectionConfig{
			Mode:      det.Mode.String(),
			Blocklist: det.Blocklist,
			Timeout:   det.Timeout,
		},
		Polling: PollingConfig{
			Interval:         poll.PollInterval,
			Timeout:          poll.PollTimeout,
			RemovalThreshold: poll.RemovalThreshold,
			HardwareRetries:  int(poll.HardwareRetries),
		},
		Redis: RedisConfig{
			Key:     "pn532:card",
			Channel: "pn532:events",
		},
		Log: LogConfig{Level: "info", Format: "auto"},
	}
}

// LoadConfig reads path on top of the defaults. Unknown keys are an error.
func LoadConfig(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Device.Transport) {
	case "", string(pn532.TransportUART), string(pn532.TransportI2C), string(pn532.TransportSPI):
	default:
		return fmt.Errorf("config.device.transport: unknown transport %q", c.Device.Transport)
	}
	if c.Device.Transport != "" && c.Device.Path == "" {
		return errors.New("config.device.transport requires config.device.path")
	}
	if c.Device.Timeout <= 0 {
		return errors.New("config.device.timeout must be positive")
	}
	if _, err := detection.ParseMode(c.Detection.Mode); err != nil {
		return fmt.Errorf("config.detection.mode: %w", err)
	}
	if c.Polling.HardwareRetries < 0 || c.Polling.HardwareRetries > 0xFE {
		return fmt.Errorf("config.polling.hardware_retries must be 0-254, got %d", c.Polling.HardwareRetries)
	}
	if err := c.monitorConfig().Validate(); err != nil {
		return fmt.Errorf("config.polling: %w", err)
	}
	if c.Redis.Addr != "" && (c.Redis.Key == "" || c.Redis.Channel == "") {
		return errors.New("config.redis.key and config.redis.channel are required with config.redis.addr")
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "auto", "text", "json":
	default:
		return fmt.Errorf("config.log.format must be auto, text or json, got %q", c.Log.Format)
	}
	return nil
}

func (c *Config) monitorConfig() polling.Config {
	cfg := polling.DefaultConfig()
	cfg.PollInterval = c.Polling.Interval
	cfg.PollTimeout = c.Polling.Timeout
	cfg.RemovalThreshold = c.Polling.RemovalThreshold
	cfg.HardwareRetries = byte(c.Polling.HardwareRetries)
	return cfg
}

func (c *Config) detectionOptions() detection.Options {
	opts := detection.DefaultOptions()
	opts.Mode, _ = detection.ParseMode(c.Detection.Mode)
	opts.Blocklist = c.Detection.Blocklist
	opts.IgnorePaths = c.Detection.IgnorePaths
	opts.Timeout = c.Detection.Timeout
	return opts
}

func (c *Config) logLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("config.log.level: %w", err)
	}
	return level, nil
}
