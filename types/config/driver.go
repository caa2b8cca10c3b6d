package config

import (
	"fmt"
	"strings"
)

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	Memory                 // in-process, development and tests only
)

type BrokerDriver int

const (
	NoBroker BrokerDriver = iota
	RabbitMQ
	Kafka
)

func (d BrokerDriver) String() string {
	switch d {
	case NoBroker:
		return "none"
	case RabbitMQ:
		return "rabbitmq"
	case Kafka:
		return "kafka"
	default:
		return "unknown"
	}
}

// UnmarshalText lets env parsing read BROKER_DRIVER by name.
func (d *BrokerDriver) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "none":
		*d = NoBroker
	case "rabbitmq":
		*d = RabbitMQ
	case "kafka":
		*d = Kafka
	default:
		return fmt.Errorf("unknown broker driver %q", text)
	}
	return nil
}

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Memory:
		return "memory"
	}
	return "unknown"
}

func (d *StorageDriver) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "", "postgres":
		*d = Postgres
	case "memory":
		*d = Memory
	default:
		return fmt.Errorf("unknown storage driver %q", text)
	}
	return nil
}
