package logger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"menlo.ai/jan-feed-gateway/config/environment_variables"
)

var (
	once     sync.Once
	instance *logrus.Logger
)

// GetLogger returns the process-wide logger. The level comes from LOG_LEVEL;
// anything other than "debug" logs JSON.
func GetLogger() *logrus.Logger {
	once.Do(func() {
		instance = New(environment_variables.EnvironmentVariables.LOG_LEVEL)
	})
	return instance
}

func New(level string) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	if lvl == logrus.DebugLevel || lvl == logrus.TraceLevel {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	return l
}
