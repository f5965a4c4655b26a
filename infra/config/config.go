package config

import (
	"bytes"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/goccy/go-yaml"
)

var ErrInvalid = errors.New("invalid configuration")

// Config is the full configuration of the lockfree tool.
type Config struct {
	Log struct {
		// Logging level (TRACE, DEBUG, INFO, WARN, ERROR, FATAL)
		Level string `json:"level"`
		// Output format: text or json
		Format string `json:"format"`
	} `json:"log"`

	Memory struct {
		// Per-participant retire ring capacity, power of two
		RingSize uint64 `json:"ring_size"`
		// Reclamation pass every N unpins of a participant
		CollectEvery uint64 `json:"collect_every"`
		// Background epoch advance interval (in milliseconds)
		AdvanceInterval uint64 `json:"advance_interval_ms"`
	} `json:"memory"`

	Server struct {
		// gRPC listen address
		Listen string `json:"listen"`
		// Prometheus listen address, empty to disable
		MetricsListen string `json:"metrics_listen"`
	} `json:"server"`

	Report struct {
		// Pebble directory of the report outbox
		Dir string `json:"dir"`

		Publisher struct {
			// sarama, kafka-go or none
			Kind    string   `json:"kind"`
			Brokers []string `json:"brokers"`
			Topic   string   `json:"topic"`
			// Outbox scan interval (in milliseconds)
			Interval uint64 `json:"interval_ms"`
			// Give up on a report after this many failed sends
			MaxRetries uint32 `json:"max_retries"`
		} `json:"publisher"`
	} `json:"report"`

	Stress struct {
		// stack or queue
		Container    string  `json:"container"`
		Workers      int     `json:"workers"`
		OpsPerWorker int     `json:"ops_per_worker"`
		PushRatio    float64 `json:"push_ratio"`
		Seed         uint64  `json:"seed"`
		// Track every value to detect duplicates and unknowns
		Exact bool `json:"exact"`
	} `json:"stress"`
}

func DefaultConfig() *Config {
	c := &Config{}
	c.Log.Level = "INFO"
	c.Log.Format = "text"

	c.Memory.RingSize = 256
	c.Memory.CollectEvery = 64
	c.Memory.AdvanceInterval = 2000

	c.Server.Listen = ":50051"
	c.Server.MetricsListen = ":9090"

	c.Report.Dir = "./reports"
	c.Report.Publisher.Kind = "none"
	c.Report.Publisher.Brokers = []string{"localhost:9092"}
	c.Report.Publisher.Topic = "lockfree.reports"
	c.Report.Publisher.Interval = 250
	c.Report.Publisher.MaxRetries = 5

	c.Stress.Container = "stack"
	c.Stress.Workers = 8
	c.Stress.OpsPerWorker = 100000
	c.Stress.PushRatio = 0.5
	c.Stress.Seed = 1
	c.Stress.Exact = true
	return c
}

// Load overlays the YAML file at path onto the defaults. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, c.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read config")
	}
	if err := Decode(data, c); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

// Decode strictly decodes YAML into c; unknown keys are errors.
func Decode(data []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data), yaml.Strict())
	if err := dec.Decode(c); err != nil {
		return errors.Wrap(err, "parse config")
	}
	return nil
}

func (c *Config) Validate() error {
	if n := c.Memory.RingSize; n == 0 || n&(n-1) != 0 {
		return errors.Wrapf(ErrInvalid, "memory.ring_size %d is not a power of two", n)
	}
	if c.Memory.CollectEvery == 0 {
		return errors.Wrap(ErrInvalid, "memory.collect_every must be positive")
	}
	if c.Memory.AdvanceInterval == 0 {
		return errors.Wrap(ErrInvalid, "memory.advance_interval_ms must be positive")
	}
	if c.Report.Publisher.Interval == 0 {
		return errors.Wrap(ErrInvalid, "report.publisher.interval_ms must be positive")
	}
	switch c.Report.Publisher.Kind {
	case "none", "sarama", "kafka-go":
	default:
		return errors.Wrapf(ErrInvalid, "report.publisher.kind %q", c.Report.Publisher.Kind)
	}
	switch c.Stress.Container {
	case "stack", "queue":
	default:
		return errors.Wrapf(ErrInvalid, "stress.container %q", c.Stress.Container)
	}
	if c.Stress.PushRatio < 0 || c.Stress.PushRatio > 1 {
		return errors.Wrapf(ErrInvalid, "stress.push_ratio %v outside [0,1]", c.Stress.PushRatio)
	}
	if c.Stress.Workers <= 0 {
		return errors.Wrapf(ErrInvalid, "stress.workers %d must be positive", c.Stress.Workers)
	}
	if c.Stress.OpsPerWorker < 0 {
		return errors.Wrapf(ErrInvalid, "stress.ops_per_worker %d must not be negative", c.Stress.OpsPerWorker)
	}
	return nil
}

func (c *Config) AdvanceInterval() time.Duration {
	return time.Duration(c.Memory.AdvanceInterval) * time.Millisecond
}

func (c *Config) PublishInterval() time.Duration {
	return time.Duration(c.Report.Publisher.Interval) * time.Millisecond
}
