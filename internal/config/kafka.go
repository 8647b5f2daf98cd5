package config

import "time"

type Kafka struct {
	Addresses []string `env:"KAFKA_ADDRESSES" envDefault:"localhost:9092" envSeparator:","`
	Group     string   `env:"KAFKA_GROUP" envDefault:"stock-ledger"`

	// ProduceTimeout bounds how long one relayed message may wait for delivery. Zero disables the bound.
	ProduceTimeout time.Duration `env:"KAFKA_PRODUCE_TIMEOUT" envDefault:"10s"`
}
