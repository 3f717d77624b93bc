package monitor

import (
	"fmt"
	"strconv"
	"strings"
)

// DiskChecker reports disk usage percentage for a mount path on a given
// backend (spec §4.B step 4). A production implementation would query the
// backend's own filesystem statistics; this package only defines the
// interface so wildcard/threshold matching can be unit-tested without
// touching a real filesystem.
type DiskChecker interface {
	// UsedPercent returns the percentage (0-100) of disk used at path on
	// the named backend.
	UsedPercent(backend, path string) (int, error)
}

// ParseDiskThresholds parses the disk_space_threshold grammar from spec
// §6: a comma-separated list of "path:pct" pairs, where path "*" matches
// every mount not explicitly listed.
func ParseDiskThresholds(spec string) ([]DiskThreshold, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, nil
	}

	var out []DiskThreshold
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("monitor: invalid disk threshold entry %q", entry)
		}
		pct, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("monitor: invalid disk threshold percent in %q: %w", entry, err)
		}
		out = append(out, DiskThreshold{Path: strings.TrimSpace(parts[0]), MaxPct: pct})
	}
	return out, nil
}

// matchThreshold finds the threshold governing path: an exact path match
// wins over the "*" wildcard; no match at all means the path is
// unconstrained (spec §4.B step 4 boundary behaviour).
func matchThreshold(thresholds []DiskThreshold, path string) (DiskThreshold, bool) {
	var wildcard DiskThreshold
	haveWildcard := false
	for _, th := range thresholds {
		if th.Path == path {
			return th, true
		}
		if th.Path == "*" {
			wildcard = th
			haveWildcard = true
		}
	}
	if haveWildcard {
		return wildcard, true
	}
	return DiskThreshold{}, false
}

// checkDiskSpace evaluates every configured threshold against checker for
// backend, returning the first path that exceeds its threshold, if any.
func checkDiskSpace(checker DiskChecker, thresholds []DiskThreshold, backend string) (exceededPath string, exceeded bool, err error) {
	if checker == nil || len(thresholds) == 0 {
		return "", false, nil
	}

	seen := make(map[string]bool)
	for _, th := range thresholds {
		path := th.Path
		if seen[path] {
			continue
		}
		seen[path] = true

		limit, ok := matchThreshold(thresholds, path)
		if !ok {
			continue
		}

		used, err := checker.UsedPercent(backend, path)
		if err != nil {
			return "", false, fmt.Errorf("monitor: disk check failed for %s on %s: %w", path, backend, err)
		}
		if used >= limit.MaxPct {
			return path, true, nil
		}
	}
	return "", false, nil
}
