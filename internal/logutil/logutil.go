// Package logutil configures the stderr logger shared by the lys
// commands.
package logutil

import (
	"os"

	"github.com/op/go-logging"
)

var format = logging.MustStringFormatter(
	`%{time:15:04:05.000} %{level:.4s} %{message}`,
)

// Setup installs a leveled stderr backend. The level comes from the
// LYS_LOG_LEVEL environment variable, falling back to defaultLevel.
func Setup(prefix string, defaultLevel logging.Level) *logging.Logger {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	logging.SetFormatter(format)
	leveled := logging.AddModuleLevel(backend)
	switch os.Getenv("LYS_LOG_LEVEL") {
	case "CRITICAL":
		leveled.SetLevel(logging.CRITICAL, "")
	case "ERROR":
		leveled.SetLevel(logging.ERROR, "")
	case "WARNING":
		leveled.SetLevel(logging.WARNING, "")
	case "NOTICE":
		leveled.SetLevel(logging.NOTICE, "")
	case "INFO":
		leveled.SetLevel(logging.INFO, "")
	case "DEBUG":
		leveled.SetLevel(logging.DEBUG, "")
	default:
		leveled.SetLevel(defaultLevel, "")
	}
	logging.SetBackend(leveled)
	return logging.MustGetLogger(prefix)
}
