// Package sensors provides file-backed implementations of the thermal and
// memory reading sources. The governor only consumes reported values; the
// sensing itself belongs to the platform.
//
// Both readers rate-limit their file polls and serve the cached last value
// between polls, so the scheduler can re-check gates between chunks without
// hammering procfs/sysfs.
package sensors

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/taskgov/governor/contracts"
)

// DefaultThermalZone is the usual CPU thermal zone on Linux.
const DefaultThermalZone = "/sys/class/thermal/thermal_zone0/temp"

// DefaultPollsPerSecond caps how often a reader touches its backing file.
const DefaultPollsPerSecond = 2

type thermalReader struct {
	path    string
	limiter *rate.Limiter

	mu   sync.Mutex
	last float64
	seen bool
}

// NewThermalReader creates a ThermalSource reading millidegrees from a
// sysfs-style file. An empty path uses the default zone.
func NewThermalReader(path string, pollsPerSec float64) contracts.ThermalSource {
	if strings.TrimSpace(path) == "" {
		path = DefaultThermalZone
	}
	if pollsPerSec <= 0 {
		pollsPerSec = DefaultPollsPerSecond
	}
	return &thermalReader{
		path:    path,
		limiter: rate.NewLimiter(rate.Limit(pollsPerSec), 1),
	}
}

func (r *thermalReader) ReadTemperature(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.limiter.Allow() && r.seen {
		return r.last, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil {
		if r.seen {
			return r.last, nil
		}
		return 0, fmt.Errorf("reading thermal zone %s: %w", r.path, err)
	}
	raw, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing thermal zone %s: %w", r.path, err)
	}

	// sysfs reports millidegrees; plain-degree test fixtures pass through.
	temp := raw
	if raw > 1000 {
		temp = raw / 1000
	}
	r.last = temp
	r.seen = true
	return temp, nil
}
