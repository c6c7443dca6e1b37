package log

// discard is a Logger implementation that drops every entry. Grounded on
// go.bryk.io/pkg/log's `Discard()` helper; used as the default sink for
// components constructed without an explicit logger.
type discard struct{}

// Discard returns a Logger that silently drops all entries.
func Discard() Logger {
	return discard{}
}

func (discard) Debug(string, ...Fields)   {}
func (discard) Info(string, ...Fields)    {}
func (discard) Warning(string, ...Fields) {}
func (discard) Error(string, ...Fields)   {}

func (d discard) WithFields(Fields) Logger          { return d }
func (d discard) WithField(string, interface{}) Logger { return d }
