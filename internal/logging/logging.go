// Package logging configures the application-wide logger backend and
// hands out named loggers for each subsystem.
package logging

import (
	"os"
	"sync"

	logging "github.com/op/go-logging"
)

var (
	initOnce sync.Once
	level    = logging.INFO
)

const format = "%{time:15:04:05.000} %{level:-7s} %{module:-10s} %{message}"

// GetLog returns a named logger, initializing the shared backend on
// first use.
func GetLog(module string) *logging.Logger {
	initOnce.Do(configure)
	return logging.MustGetLogger(module)
}

// SetLevel changes the global log level for all loggers.
func SetLevel(l logging.Level) {
	initOnce.Do(configure)
	level = l
	logging.SetLevel(level, "")
}

// ParseLevel maps a config string to a log level, defaulting to info.
func ParseLevel(s string) logging.Level {
	if l, err := logging.LogLevel(s); err == nil {
		return l
	}
	return logging.INFO
}

func configure() {
	backend := logging.NewLogBackend(os.Stdout, "", 0)
	formatted := logging.NewBackendFormatter(backend, logging.MustStringFormatter(format))
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(level, "")
	logging.SetBackend(leveled)
}
