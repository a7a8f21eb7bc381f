//go:build !linux

package main

import (
	"fmt"
	"time"

	"memagent/process"
)

func openLive(int, string, time.Duration) (process.Engine, error) {
	return nil, fmt.Errorf("live targets: %w", process.ErrUnsupported)
}
