package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"magpie/internal/config"
	"magpie/internal/extmap"
	"magpie/internal/oracle"
)

// CheckOracle verifies that the classification oracle is reachable and the
// key is valid. It uses a 30-second timeout and a single attempt (no retries).
func CheckOracle(ctx context.Context, oc config.OracleConfig) Result {
	const name = "Classification oracle"

	if oc.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := oracle.NewClient(oracle.Config{
		APIKey:         oc.APIKey,
		BaseURL:        oc.BaseURL,
		Model:          oc.Model,
		Referer:        oc.Referer,
		Title:          oc.Title,
		TimeoutSeconds: oc.TimeoutSeconds,
		RetryAttempts:  1,
	})

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeOracleError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckCategoryMap verifies that the category map file, when present, parses
// with the same decoder the organizer loads it with. A missing file passes
// because the first run seeds it with the default groups.
func CheckCategoryMap(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Passed: true, Detail: "not configured (in-memory defaults)"}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (missing, defaults seeded on first run)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: read: %v)", path, err)}
	}

	cats, err := extmap.Parse(data)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", path, err)}
	}

	categories := 0
	for _, cat := range cats {
		if cat.Name != extmap.ExclusionsKey {
			categories++
		}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d categories)", path, categories)}
}

// CheckRunLock probes the run lock file and reports whether a new run could
// acquire it right now. The probe lock is released immediately.
func CheckRunLock(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "lock path not configured"}
	}
	if _, err := os.Stat(filepath.Dir(path)); os.IsNotExist(err) {
		// No log directory yet means no process can be holding the lock.
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", path)}
	}

	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: probe: %v)", path, err)}
	}
	if !locked {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: held by another process, a run is in progress)", path)}
	}
	if err := lock.Unlock(); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: release probe: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", path)}
}

// summarizeOracleError produces a human-readable summary for oracle health
// check failures.
func summarizeOracleError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (oracle API unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (oracle API unreachable)"
	}
	return err.Error()
}
