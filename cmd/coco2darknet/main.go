// Converts a COCO object detection dataset to the Darknet label format, split into training and
// validation sets.
package main

import (
	"context"
	"errors"
	"os"

	"github.com/charmbracelet/fang"

	"github.com/sensorable/cococonv"
)

const version = "0.2.0"

// Exit codes.
const (
	exitOK           = 0
	exitOutputExists = 1
	exitFailure      = 2
)

func main() {
	err := fang.Execute(context.Background(), newRootCmd(), fang.WithVersion(version))
	os.Exit(exitCode(err))
}

// exitCode maps the command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, cococonv.ErrOutputExists):
		return exitOutputExists
	default:
		return exitFailure
	}
}
