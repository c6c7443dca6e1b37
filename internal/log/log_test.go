package log

import "testing"

func TestDiscardNeverPanics(t *testing.T) {
	l := Discard()
	l.Debug("x")
	l.Info("x", Fields{"a": 1})
	l.Warning("x")
	l.Error("x")
	_ = l.WithField("k", "v").WithFields(Fields{"a": 1})
}

func TestLevelString(t *testing.T) {
	cases := map[Level]string{Debug: "debug", Info: "info", Warning: "warning", Error: "error", Level(99): "unknown"}
	for lvl, want := range cases {
		if got := lvl.String(); got != want {
			t.Errorf("Level(%d).String() = %q, want %q", lvl, got, want)
		}
	}
}
