package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nedscode/dbrouted/pkg/monitor"
)

func TestValidateAcceptsDefaults(t *testing.T) {
	assert.NoError(t, Validate(monitor.DefaultSettings()))
}

func TestValidateRejectsZeroConnectAttempts(t *testing.T) {
	s := monitor.DefaultSettings()
	s.ConnectAttempts = 0

	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ConnectAttempts")
	assert.Contains(t, err.Error(), "at least")
}

func TestValidateRejectsZeroInterval(t *testing.T) {
	s := monitor.DefaultSettings()
	s.Interval = 0

	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Interval")
}

func TestValidateRejectsNegativeJournalMaxAge(t *testing.T) {
	s := monitor.DefaultSettings()
	s.JournalMaxAge = -1 * time.Second

	err := Validate(s)
	assert.Error(t, err)
}

func TestValidateRejectsOutOfRangeDiskThreshold(t *testing.T) {
	s := monitor.DefaultSettings()
	s.DiskSpaceThresholds = []monitor.DiskThreshold{{Path: "/var", MaxPct: 150}}

	err := Validate(s)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "out-of-range")
}

func TestValidateRejectsEmptyDiskThresholdPath(t *testing.T) {
	s := monitor.DefaultSettings()
	s.DiskSpaceThresholds = []monitor.DiskThreshold{{Path: "", MaxPct: 50}}

	err := Validate(s)
	assert.Error(t, err)
}
