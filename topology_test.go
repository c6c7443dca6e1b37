package relaymq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueOptionsAsArguments(t *testing.T) {
	ttl := int64(60000)
	maxLen := 1000
	opts := QueueOptions{
		MessageTTL:           &ttl,
		MaxLength:            &maxLen,
		DeadLetterExchange:   "dlx",
		SingleActiveConsumer: true,
		Overflow:             OverflowDropHead,
	}
	args := opts.AsArguments()
	assert.Equal(t, int64(60000), args["x-message-ttl"])
	assert.Equal(t, 1000, args["x-max-length"])
	assert.Equal(t, "dlx", args["x-dead-letter-exchange"])
	assert.Equal(t, true, args["x-single-active-consumer"])
	assert.Equal(t, "drop-head", args["x-overflow"])
	assert.NotContains(t, args, "x-expires")
}

func TestQueueOptionsAsArgumentsEmpty(t *testing.T) {
	assert.Empty(t, QueueOptions{}.AsArguments())
}

func TestLoadTopologyYAML(t *testing.T) {
	doc := []byte(`
exchanges:
  - name: events
    kind: topic
    durable: true
queues:
  - name: events.worker
    durable: true
    options:
      maxLength: 1000
      overflow: drop-head
bindings:
  - queue: events.worker
    exchange: events
    routingKey: "orders.#"
`)
	topo, err := LoadTopologyYAML(doc)
	require.NoError(t, err)
	require.Len(t, topo.Exchanges, 1)
	assert.Equal(t, "events", topo.Exchanges[0].Name)
	require.Len(t, topo.Queues, 1)
	assert.Equal(t, 1000, *topo.Queues[0].Options.MaxLength)
	require.Len(t, topo.Bindings, 1)
	assert.Equal(t, "orders.#", topo.Bindings[0].RoutingKey)
}

func TestLoadTopologyYAMLInvalid(t *testing.T) {
	_, err := LoadTopologyYAML([]byte("not: [valid yaml"))
	require.Error(t, err)
	assert.Equal(t, CodeConfigurationErr, CodeOf(err))
}
