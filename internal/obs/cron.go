package obs

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CronLogger routes robfig/cron's internal logging to zap.
// cron's Info messages are chatty (every wake-up), so they go to Debug.
type CronLogger struct {
	l *zap.SugaredLogger
}

var _ cron.Logger = CronLogger{}

func NewCronLogger(l *zap.Logger) CronLogger {
	return CronLogger{l: Component(l, "cron").Sugar()}
}

func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}
