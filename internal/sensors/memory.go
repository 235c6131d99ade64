package sensors

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/taskgov/governor/contracts"
)

// DefaultMeminfo is the Linux memory report.
const DefaultMeminfo = "/proc/meminfo"

type memoryReader struct {
	path    string
	limiter *rate.Limiter

	mu   sync.Mutex
	last float64
	seen bool
}

// NewMemoryReader creates a MemorySource parsing MemAvailable from a
// meminfo-style file. An empty path uses /proc/meminfo.
func NewMemoryReader(path string, pollsPerSec float64) contracts.MemorySource {
	if strings.TrimSpace(path) == "" {
		path = DefaultMeminfo
	}
	if pollsPerSec <= 0 {
		pollsPerSec = DefaultPollsPerSecond
	}
	return &memoryReader{
		path:    path,
		limiter: rate.NewLimiter(rate.Limit(pollsPerSec), 1),
	}
}

func (r *memoryReader) AvailableGB(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.limiter.Allow() && r.seen {
		return r.last, nil
	}

	f, err := os.Open(r.path)
	if err != nil {
		if r.seen {
			return r.last, nil
		}
		return 0, fmt.Errorf("reading meminfo %s: %w", r.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return 0, fmt.Errorf("parsing MemAvailable in %s: %w", r.path, err)
		}
		gb := kb / (1024 * 1024)
		r.last = gb
		r.seen = true
		return gb, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("meminfo %s: MemAvailable not found", r.path)
}
