package relaymq

import (
	"strconv"

	amqp "github.com/rabbitmq/amqp091-go"
	"gopkg.in/yaml.v3"
)

// OverflowMode selects a queue's behavior once it reaches its maximum
// length, mirroring RabbitMQ's x-overflow argument.
type OverflowMode string

const (
	OverflowDropHead  OverflowMode = "drop-head"
	OverflowRejectPub OverflowMode = "reject-publish"
)

// QueueOptions captures the RabbitMQ queue arguments a declarative
// Topology can assert, grounded on the teacher's amqp/state.go
// QueueOptions.AsArguments.
type QueueOptions struct {
	MessageTTL           *int64       `yaml:"messageTTL,omitempty"`
	Expires              *int64       `yaml:"expires,omitempty"`
	MaxLength            *int         `yaml:"maxLength,omitempty"`
	DeadLetterExchange   string       `yaml:"deadLetterExchange,omitempty"`
	DeadLetterRoutingKey string       `yaml:"deadLetterRoutingKey,omitempty"`
	SingleActiveConsumer bool         `yaml:"singleActiveConsumer,omitempty"`
	MaxPriority          *int         `yaml:"maxPriority,omitempty"`
	Overflow             OverflowMode `yaml:"overflow,omitempty"`
}

// AsArguments renders the options as an amqp.Table suitable for
// QueueDeclare's args parameter.
func (o QueueOptions) AsArguments() amqp.Table {
	args := amqp.Table{}
	if o.MessageTTL != nil {
		args["x-message-ttl"] = *o.MessageTTL
	}
	if o.Expires != nil {
		args["x-expires"] = *o.Expires
	}
	if o.MaxLength != nil {
		args["x-max-length"] = *o.MaxLength
	}
	if o.DeadLetterExchange != "" {
		args["x-dead-letter-exchange"] = o.DeadLetterExchange
	}
	if o.DeadLetterRoutingKey != "" {
		args["x-dead-letter-routing-key"] = o.DeadLetterRoutingKey
	}
	if o.SingleActiveConsumer {
		args["x-single-active-consumer"] = true
	}
	if o.MaxPriority != nil {
		args["x-max-priority"] = *o.MaxPriority
	}
	if o.Overflow != "" {
		args["x-overflow"] = string(o.Overflow)
	}
	return args
}

// Exchange describes a declarative exchange assertion.
type Exchange struct {
	Name       string `yaml:"name"`
	Kind       string `yaml:"kind"` // "topic", "direct", "fanout", "headers"
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"autoDelete"`
}

// Queue describes a declarative queue assertion.
type Queue struct {
	Name       string       `yaml:"name"`
	Durable    bool         `yaml:"durable"`
	AutoDelete bool         `yaml:"autoDelete"`
	Exclusive  bool         `yaml:"exclusive"`
	Options    QueueOptions `yaml:"options,omitempty"`
}

// Binding describes a declarative queue-to-exchange binding.
type Binding struct {
	Queue      string `yaml:"queue"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routingKey"`
}

// Topology is a declarative description of the exchanges, queues, and
// bindings a component requires, asserted idempotently against the
// broker via Declare. Grounded on the teacher's amqp/state.go Topology
// and its loadTopology/addExchange/addQueue/addBinding helpers.
type Topology struct {
	Exchanges []Exchange `yaml:"exchanges,omitempty"`
	Queues    []Queue    `yaml:"queues,omitempty"`
	Bindings  []Binding  `yaml:"bindings,omitempty"`
}

// LoadTopologyYAML parses a YAML document describing a Topology, so an
// operator can hand a broker layout to NewClient/WithTopology without
// writing Go, per the teacher's state.go-style declarative topology.
func LoadTopologyYAML(data []byte) (Topology, error) {
	var t Topology
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Topology{}, WrapError(CodeConfigurationErr, err)
	}
	return t, nil
}

// Declare asserts every exchange, queue, and binding in t against ch, in
// that order so bindings always reference already-declared entities.
func (t Topology) Declare(ch *amqp.Channel) error {
	for _, ex := range t.Exchanges {
		if err := ch.ExchangeDeclare(ex.Name, ex.Kind, ex.Durable, ex.AutoDelete, false, false, nil); err != nil {
			return WrapError(CodeExchangeError, err).WithDetails("exchange:" + ex.Name)
		}
	}
	for _, q := range t.Queues {
		if _, err := ch.QueueDeclare(q.Name, q.Durable, q.AutoDelete, q.Exclusive, false, q.Options.AsArguments()); err != nil {
			return WrapError(CodeExchangeError, err).WithDetails("queue:" + q.Name)
		}
	}
	for i, b := range t.Bindings {
		if err := ch.QueueBind(b.Queue, b.RoutingKey, b.Exchange, false, nil); err != nil {
			return WrapError(CodeExchangeError, err).WithDetails("binding:" + strconv.Itoa(i))
		}
	}
	return nil
}
