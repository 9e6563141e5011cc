package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/nutrilog/datasync"
)

type LogrusLogger struct{ E *logrus.Entry }

var _ datasync.Logger = LogrusLogger{}

func (l LogrusLogger) Debug(msg string, f datasync.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f datasync.Fields) {
	l.E.WithFields(logrus.Fields(f)).Info(msg)
}
func (l LogrusLogger) Warn(msg string, f datasync.Fields) {
	l.E.WithFields(logrus.Fields(f)).Warn(msg)
}
func (l LogrusLogger) Error(msg string, f datasync.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
