// Package preflight probes the backends a command is about to depend on:
// the metadata store, the job queues, the archive directory, and the
// index path. The doctor command runs every check; workers can run the
// slice they care about before entering their loop.
package preflight

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Check names are stable strings used in diagnostic output.
const (
	CheckPostgres    = "postgres.ping"
	CheckRedis       = "redis.ping"
	CheckArchiveRoot = "archive.writable"
	CheckIndexPath   = "index.path"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// Pinger verifies connectivity to a backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check probes one dependency.
type Check struct {
	// Name identifies the check in results.
	Name string

	// Probe performs the check. A nil error means the dependency is
	// usable right now.
	Probe func(ctx context.Context) error
}

// Result is the outcome of one check.
type Result struct {
	Name    string        `json:"name"`
	OK      bool          `json:"ok"`
	Detail  string        `json:"detail,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// Run executes checks in order, bounding each probe by timeout (<= 0
// uses DefaultTimeout). It never stops early; every dependency gets
// reported even when the first one is down.
func Run(ctx context.Context, timeout time.Duration, checks []Check) []Result {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]Result, 0, len(checks))
	for _, c := range checks {
		start := time.Now()

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		err := c.Probe(probeCtx)
		cancel()

		res := Result{Name: c.Name, OK: err == nil, Elapsed: time.Since(start)}
		if err != nil {
			res.Detail = err.Error()
		}
		results = append(results, res)
	}
	return results
}

// Failed reports whether any result is not OK.
func Failed(results []Result) bool {
	for _, r := range results {
		if !r.OK {
			return true
		}
	}
	return false
}

// Postgres returns a check that pings the metadata store.
func Postgres(p Pinger) Check {
	return Check{Name: CheckPostgres, Probe: p.Ping}
}

// Redis returns a check that pings the queue backend.
func Redis(p Pinger) Check {
	return Check{Name: CheckRedis, Probe: p.Ping}
}

// ArchiveRoot returns a check that the archive directory exists and is
// writable, proven by creating and removing a probe file.
func ArchiveRoot(root string) Check {
	return Check{Name: CheckArchiveRoot, Probe: func(ctx context.Context) error {
		info, err := os.Stat(root)
		if err != nil {
			return fmt.Errorf("archive root %s: %w", root, err)
		}
		if !info.IsDir() {
			return fmt.Errorf("archive root %s: not a directory", root)
		}

		f, err := os.CreateTemp(root, ".preflight-*")
		if err != nil {
			return fmt.Errorf("archive root %s: not writable: %w", root, err)
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	}}
}

// IndexPath returns a check that the index location is usable: either
// the path already exists as a directory, or its parent is a writable
// directory the store can create it in. The index itself is not opened;
// that would steal the directory lock from a running indexer.
func IndexPath(path string) Check {
	return Check{Name: CheckIndexPath, Probe: func(ctx context.Context) error {
		info, err := os.Stat(path)
		if err == nil {
			if !info.IsDir() {
				return fmt.Errorf("index path %s: not a directory", path)
			}
			return nil
		}
		if !os.IsNotExist(err) {
			return fmt.Errorf("index path %s: %w", path, err)
		}

		parent := filepath.Dir(path)
		pinfo, err := os.Stat(parent)
		if err != nil {
			return fmt.Errorf("index parent %s: %w", parent, err)
		}
		if !pinfo.IsDir() {
			return fmt.Errorf("index parent %s: not a directory", parent)
		}

		f, err := os.CreateTemp(parent, ".preflight-*")
		if err != nil {
			return fmt.Errorf("index parent %s: not writable: %w", parent, err)
		}
		name := f.Name()
		_ = f.Close()
		return os.Remove(name)
	}}
}
