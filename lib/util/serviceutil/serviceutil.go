package serviceutil

import (
	"log/slog"
	"os"
)

// Fatal logs err and exits with a non-zero status.
func Fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}
