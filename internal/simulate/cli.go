package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/okian/promille/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging sends log output to stdout and to logFile. An empty logFile
// gets a timestamped name.
func SetupLogging(logFile string) (io.Closer, error) {
	if logFile == "" {
		logFile = "simulate_" + time.Now().Format("20060102_150405") + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return nil, fmt.Errorf("failed to create log file: %w", err)
	}
	if err := logger.Configure(io.MultiWriter(os.Stdout, file), "text"); err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return file, nil
}

// ShowHelp prints usage information for the simulation tool.
func ShowHelp() {
	os.Stdout.WriteString(`Promille Simulation Tool
========================

Runs the status tracker in-process on a simulated clock, records random
consumption events through the task queue and verifies the HTTP read side.

Usage:
  go run ./cmd/simulate [options]

Options:
  -events int
        Number of events to generate (default 5000)
  -members int
        Number of distinct members (default 200)
  -workers int
        Number of concurrent submitters (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 10s)
  -output string
        Write the generated events to this JSON file
  -log string
        Log file (default: simulate_TIMESTAMP.log)
  -verbose
        Log every standing and failure
  -help
        Show this help message

Examples:
  go run ./cmd/simulate
  go run ./cmd/simulate -events 50000 -members 1000 -workers 16
`)
}
