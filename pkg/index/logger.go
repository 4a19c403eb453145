package index

import (
	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// badgerLogger routes store-internal logging through zap. Badger is
// chatty at info level during compaction; info and below map to debug.
type badgerLogger struct {
	s *zap.SugaredLogger
}

func newBadgerLogger(l *zap.Logger) badger.Logger {
	if l == nil {
		return nil
	}
	return &badgerLogger{s: l.Named("index").WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.s.Errorf(format, args...)
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.s.Warnf(format, args...)
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.s.Debugf(format, args...)
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.s.Debugf(format, args...)
}
