package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/ttelectronics/trackii-scan/internal/diaglog"
)

const maxLogSize = 10 * 1024 * 1024

// initLogging logs to stderr and to <logDir>/trackii-scand.log, rolled at 10MB.
// The returned closer releases the file.
func initLogging(logDir string) (*logrus.Logger, io.Closer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("create log dir: %w", err)
	}
	file, err := diaglog.OpenRolling(filepath.Join(logDir, "trackii-scand.log"), maxLogSize)
	if err != nil {
		return nil, nil, err
	}

	log := logrus.New()
	log.SetOutput(io.MultiWriter(os.Stderr, file))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		DisableColors:   true,
	})
	log.SetLevel(logrus.InfoLevel)
	if diaglog.IsDebugEnabled() {
		log.SetLevel(logrus.DebugLevel)
	}
	return log, file, nil
}
