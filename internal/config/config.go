// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config loads the broker configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/destiny/mdbroker/internal/logging"
	"github.com/destiny/mdbroker/majordomo"
)

type Config struct {
	Bind        string `yaml:"bind"`
	Verbose     bool   `yaml:"verbose"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Queue     QueueConfig     `yaml:"queue"`
}

type HeartbeatConfig struct {
	IntervalMillis int `yaml:"interval_ms"`
	Liveness       int `yaml:"liveness"`
}

type QueueConfig struct {
	Max               int    `yaml:"max"`
	Overflow          string `yaml:"overflow"`
	RequestTTLSeconds int    `yaml:"request_ttl_seconds"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c := &Config{}
	c.setDefaults()
	return c
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document, fills defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Bind == "" {
		c.Bind = "tcp://*:5555"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Heartbeat.IntervalMillis == 0 {
		c.Heartbeat.IntervalMillis = int(majordomo.DefaultHeartbeatInterval / time.Millisecond)
	}
	if c.Heartbeat.Liveness == 0 {
		c.Heartbeat.Liveness = majordomo.DefaultHeartbeatLiveness
	}
	if c.Queue.Overflow == "" {
		c.Queue.Overflow = majordomo.OverflowRejectNew.String()
	}
}

// Validate checks configuration values
func (c *Config) Validate() error {
	if c.Heartbeat.IntervalMillis < 0 {
		return fmt.Errorf("heartbeat interval cannot be negative: %d", c.Heartbeat.IntervalMillis)
	}
	if c.Heartbeat.Liveness < 0 {
		return fmt.Errorf("heartbeat liveness cannot be negative: %d", c.Heartbeat.Liveness)
	}
	if c.Queue.Max < 0 {
		return fmt.Errorf("queue max cannot be negative: %d", c.Queue.Max)
	}
	if c.Queue.RequestTTLSeconds < 0 {
		return fmt.Errorf("request ttl seconds cannot be negative: %d", c.Queue.RequestTTLSeconds)
	}
	if _, err := majordomo.ParseOverflowPolicy(c.Queue.Overflow); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// Level returns the configured log level, raised to debug in verbose mode.
func (c *Config) Level() logging.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		level = logging.LevelInfo
	}
	if c.Verbose && level < logging.LevelDebug {
		level = logging.LevelDebug
	}
	return level
}

// BrokerOptions converts the configuration into broker options.
func (c *Config) BrokerOptions() (*majordomo.BrokerOptions, error) {
	overflow, err := majordomo.ParseOverflowPolicy(c.Queue.Overflow)
	if err != nil {
		return nil, err
	}

	opts := majordomo.DefaultBrokerOptions()
	opts.HeartbeatInterval = time.Duration(c.Heartbeat.IntervalMillis) * time.Millisecond
	opts.HeartbeatLiveness = c.Heartbeat.Liveness
	opts.Verbose = c.Verbose
	opts.MaxQueue = c.Queue.Max
	opts.Overflow = overflow
	opts.RequestTTL = time.Duration(c.Queue.RequestTTLSeconds) * time.Second
	return opts, nil
}
