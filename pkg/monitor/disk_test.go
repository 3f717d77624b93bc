package monitor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiskThresholdsBasic(t *testing.T) {
	out, err := ParseDiskThresholds("/data:80,*:90")
	require.NoError(t, err)
	assert.Equal(t, []DiskThreshold{{Path: "/data", MaxPct: 80}, {Path: "*", MaxPct: 90}}, out)
}

func TestParseDiskThresholdsEmpty(t *testing.T) {
	out, err := ParseDiskThresholds("")
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestParseDiskThresholdsRejectsMalformedEntry(t *testing.T) {
	_, err := ParseDiskThresholds("nodash80")
	assert.Error(t, err)
}

func TestParseDiskThresholdsRejectsNonNumericPercent(t *testing.T) {
	_, err := ParseDiskThresholds("/data:eighty")
	assert.Error(t, err)
}

func TestMatchThresholdExactBeatsWildcard(t *testing.T) {
	thresholds := []DiskThreshold{{Path: "*", MaxPct: 90}, {Path: "/data", MaxPct: 80}}
	th, ok := matchThreshold(thresholds, "/data")
	require.True(t, ok)
	assert.Equal(t, 80, th.MaxPct)
}

func TestMatchThresholdFallsBackToWildcard(t *testing.T) {
	thresholds := []DiskThreshold{{Path: "*", MaxPct: 90}, {Path: "/data", MaxPct: 80}}
	th, ok := matchThreshold(thresholds, "/other")
	require.True(t, ok)
	assert.Equal(t, 90, th.MaxPct)
}

func TestMatchThresholdNoneConfiguredIsUnconstrained(t *testing.T) {
	_, ok := matchThreshold(nil, "/data")
	assert.False(t, ok)
}

type stubDiskChecker struct {
	usage map[string]int
	err   error
}

func (s stubDiskChecker) UsedPercent(backend, path string) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.usage[path], nil
}

func TestCheckDiskSpaceExceeded(t *testing.T) {
	checker := stubDiskChecker{usage: map[string]int{"/data": 95}}
	path, exceeded, err := checkDiskSpace(checker, []DiskThreshold{{Path: "/data", MaxPct: 90}}, "b1")
	require.NoError(t, err)
	assert.True(t, exceeded)
	assert.Equal(t, "/data", path)
}

func TestCheckDiskSpaceWithinLimit(t *testing.T) {
	checker := stubDiskChecker{usage: map[string]int{"/data": 50}}
	_, exceeded, err := checkDiskSpace(checker, []DiskThreshold{{Path: "/data", MaxPct: 90}}, "b1")
	require.NoError(t, err)
	assert.False(t, exceeded)
}

func TestCheckDiskSpacePropagatesCheckerError(t *testing.T) {
	checker := stubDiskChecker{err: errors.New("stat failed")}
	_, _, err := checkDiskSpace(checker, []DiskThreshold{{Path: "/data", MaxPct: 90}}, "b1")
	assert.Error(t, err)
}

func TestCheckDiskSpaceNoThresholdsIsNoop(t *testing.T) {
	_, exceeded, err := checkDiskSpace(nil, nil, "b1")
	require.NoError(t, err)
	assert.False(t, exceeded)
}
