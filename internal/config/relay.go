package config

import "time"

type Relay struct {
	Enabled   bool          `env:"RELAY_ENABLED" envDefault:"false"`
	BatchSize uint32        `env:"RELAY_BATCH_SIZE" envDefault:"100"`
	Interval  time.Duration `env:"RELAY_INTERVAL" envDefault:"1s"`
}
