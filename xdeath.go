package relaymq

import amqp "github.com/rabbitmq/amqp091-go"

// XDeathFilter narrows the entries XDeathCount sums over.
type XDeathFilter struct {
	Queue      string
	Exchange   string
	RoutingKey string
}

func (f XDeathFilter) matches(entry map[string]interface{}) bool {
	if f.Queue != "" {
		if q, _ := entry["queue"].(string); q != f.Queue {
			return false
		}
	}
	if f.Exchange != "" {
		if ex, _ := entry["exchange"].(string); ex != f.Exchange {
			return false
		}
	}
	if f.RoutingKey != "" {
		switch rk := entry["routing-keys"].(type) {
		case []interface{}:
			found := false
			for _, k := range rk {
				if s, ok := k.(string); ok && s == f.RoutingKey {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		case []string:
			found := false
			for _, s := range rk {
				if s == f.RoutingKey {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// XDeathCount sums the "count" field across the delivery's x-death
// header, accepting both the array form RabbitMQ normally sends and a
// single-object form some producers emit, optionally filtered by queue,
// exchange, or routing-key membership. It is an external-collaborator
// helper named in spec.md §6, not part of the RPC/pub-sub core.
func XDeathCount(headers amqp.Table, filter XDeathFilter) int64 {
	raw, ok := headers["x-death"]
	if !ok {
		return 0
	}

	var entries []map[string]interface{}
	switch v := raw.(type) {
	case []interface{}:
		for _, item := range v {
			if m, ok := item.(amqp.Table); ok {
				entries = append(entries, map[string]interface{}(m))
				continue
			}
			if m, ok := item.(map[string]interface{}); ok {
				entries = append(entries, m)
			}
		}
	case amqp.Table:
		entries = append(entries, map[string]interface{}(v))
	case map[string]interface{}:
		entries = append(entries, v)
	}

	var total int64
	for _, entry := range entries {
		if !filter.matches(entry) {
			continue
		}
		switch c := entry["count"].(type) {
		case int64:
			total += c
		case int32:
			total += int64(c)
		case int:
			total += int64(c)
		}
	}
	return total
}
