// Package logging supplies the default types.Logger implementation,
// backed by logrus the way the rest of the example stack wires it in
// (dolthub-dolt's statspro scheduler and cluster packages construct a
// *logrus.Logger directly rather than using the global logger).
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/jabolina/go-core/pkg/core/types"
)

// Logger adapts a *logrus.Logger to types.Logger.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing text-formatted entries to out (os.Stderr
// if nil), at the given level ("debug", "info", "warn", "error").
func New(out io.Writer, level string) *Logger {
	if out == nil {
		out = os.Stderr
	}
	base := logrus.New()
	base.SetOutput(out)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	return &Logger{entry: logrus.NewEntry(base)}
}

// WithPeer returns a Logger that tags every subsequent line with peer,
// mirroring the per-neighbor context the teacher's default logger
// leaves to its callers to add via format strings.
func (l *Logger) WithPeer(peer types.PeerID) *Logger {
	return &Logger{entry: l.entry.WithField("peer", peer.String())}
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

var _ types.Logger = (*Logger)(nil)
