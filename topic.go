package relaymq

import "strings"

// topicMatch reports whether routingKey matches an AMQP topic-exchange
// binding pattern: "*" matches exactly one dot-separated segment, "#"
// matches zero or more segments, per spec.md §4.6 and the GLOSSARY.
func topicMatch(pattern, routingKey string) bool {
	return matchSegments(strings.Split(pattern, "."), strings.Split(routingKey, "."))
}

func matchSegments(pattern, key []string) bool {
	if len(pattern) == 0 {
		return len(key) == 0
	}
	head := pattern[0]
	switch head {
	case "#":
		if len(pattern) == 1 {
			return true
		}
		// "#" can absorb zero or more segments; try every split point.
		for i := 0; i <= len(key); i++ {
			if matchSegments(pattern[1:], key[i:]) {
				return true
			}
		}
		return false
	case "*":
		if len(key) == 0 {
			return false
		}
		return matchSegments(pattern[1:], key[1:])
	default:
		if len(key) == 0 || key[0] != head {
			return false
		}
		return matchSegments(pattern[1:], key[1:])
	}
}
