package relaymq

import "testing"

func TestTopicMatch(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"orders.created", "orders.created", true},
		{"orders.*", "orders.created", true},
		{"orders.*", "orders.created.v2", false},
		{"orders.#", "orders.created.v2", true},
		{"orders.#", "orders", true},
		{"#", "anything.at.all", true},
		{"*.critical", "app.critical", true},
		{"*.critical", "critical", false},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.b.c", false},
		{"a.#.c", "a.b.b.c", true},
		{"a.#.c", "a.c", true},
	}
	for _, tc := range cases {
		got := topicMatch(tc.pattern, tc.key)
		if got != tc.want {
			t.Errorf("topicMatch(%q, %q) = %v, want %v", tc.pattern, tc.key, got, tc.want)
		}
	}
}
