package log

// Discard is a Logger that drops every message. Useful in tests and as the
// default for components constructed without an explicit logger.
var Discard Logger = discard{}

type discard struct{}

func (discard) Debugf(string, ...any) {}
func (discard) Infof(string, ...any)  {}
func (discard) Warnf(string, ...any)  {}
func (discard) Errorf(string, ...any) {}
