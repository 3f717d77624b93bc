package monitor

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// DiskThreshold is one "path:max%" entry of the disk_space_threshold
// configuration key (spec §6). Path "*" matches every mount not
// explicitly listed elsewhere (spec §4.B step 4).
type DiskThreshold struct {
	Path    string `validate:"required"`
	MaxPct  int    `validate:"gte=0,lte=100"`
}

// Settings is a monitor's full configuration surface (spec §3, §6).
// Configuration *file* parsing is explicitly out of scope (spec §1): the
// embedding caller populates this struct directly; Validate only checks
// the numeric/timeout constraints the spec implies.
type Settings struct {
	ConnectAttempts int           `validate:"gte=1"`
	ConnectTimeout  time.Duration `validate:"gt=0"`
	ReadTimeout     time.Duration `validate:"gt=0"`
	WriteTimeout    time.Duration `validate:"gt=0"`

	Interval time.Duration `validate:"gt=0"`

	JournalMaxAge time.Duration `validate:"gte=0"`

	DiskSpaceCheckInterval time.Duration `validate:"gte=0"`
	DiskSpaceThresholds    []DiskThreshold

	EventMask  Category `validate:"-"`
	Script     string
	ScriptTimeout time.Duration `validate:"gte=0"`

	User     string
	Password string
}

// DefaultSettings returns conservative defaults matching the ranges the
// original monitor ships with.
func DefaultSettings() Settings {
	return Settings{
		ConnectAttempts:        1,
		ConnectTimeout:         3 * time.Second,
		ReadTimeout:            3 * time.Second,
		WriteTimeout:           3 * time.Second,
		Interval:               2 * time.Second,
		JournalMaxAge:          28800 * time.Second,
		DiskSpaceCheckInterval: 0,
		ScriptTimeout:          90 * time.Second,
		EventMask:              AllCategories,
	}
}

// Validate checks Settings against the constraints implied by spec §6's
// configuration key table, using go-playground/validator struct tags plus
// a hand-checked pass over DiskSpaceThresholds (validator's struct tags
// don't reach into slice-of-struct path/percent pairs cleanly here).
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("monitor: invalid settings: %w", err)
	}
	for _, th := range s.DiskSpaceThresholds {
		if th.Path == "" {
			return fmt.Errorf("monitor: invalid settings: disk threshold with empty path")
		}
		if th.MaxPct < 0 || th.MaxPct > 100 {
			return fmt.Errorf("monitor: invalid settings: disk threshold %q has out-of-range percent %d", th.Path, th.MaxPct)
		}
	}
	return nil
}
