package relaymq

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
)

func TestXDeathCountSumsMatchingEntries(t *testing.T) {
	headers := amqp.Table{
		"x-death": []interface{}{
			amqp.Table{"queue": "work", "exchange": "ex", "routing-keys": []interface{}{"a"}, "count": int64(3)},
			amqp.Table{"queue": "other", "exchange": "ex", "routing-keys": []interface{}{"a"}, "count": int64(5)},
		},
	}
	got := XDeathCount(headers, XDeathFilter{Queue: "work"})
	assert.Equal(t, int64(3), got)

	all := XDeathCount(headers, XDeathFilter{})
	assert.Equal(t, int64(8), all)
}

func TestXDeathCountNoHeader(t *testing.T) {
	assert.Equal(t, int64(0), XDeathCount(amqp.Table{}, XDeathFilter{}))
}

func TestXDeathCountRoutingKeyFilter(t *testing.T) {
	headers := amqp.Table{
		"x-death": []interface{}{
			amqp.Table{"queue": "q", "routing-keys": []interface{}{"a", "b"}, "count": int64(1)},
		},
	}
	assert.Equal(t, int64(1), XDeathCount(headers, XDeathFilter{RoutingKey: "b"}))
	assert.Equal(t, int64(0), XDeathCount(headers, XDeathFilter{RoutingKey: "c"}))
}
