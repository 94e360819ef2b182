// Package logging builds the structured logger used by kthreadsim.
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// levels are the accepted level names, in order of increasing verbosity.
var levels = [...]logiface.Level{
	logiface.LevelDisabled,
	logiface.LevelEmergency,
	logiface.LevelAlert,
	logiface.LevelCritical,
	logiface.LevelError,
	logiface.LevelWarning,
	logiface.LevelNotice,
	logiface.LevelInformational,
	logiface.LevelDebug,
	logiface.LevelTrace,
}

// aliases maps common spellings onto the syslog keywords.
var aliases = map[string]logiface.Level{
	"off":         logiface.LevelDisabled,
	"none":        logiface.LevelDisabled,
	"critical":    logiface.LevelCritical,
	"error":       logiface.LevelError,
	"warn":        logiface.LevelWarning,
	"information": logiface.LevelInformational,
}

// ParseLevel parses a level keyword, as printed by logiface.Level.String,
// case-insensitively.
func ParseLevel(s string) (logiface.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, level := range levels {
		if level.String() == s {
			return level, nil
		}
	}
	if level, ok := aliases[s]; ok {
		return level, nil
	}
	return logiface.LevelDisabled, fmt.Errorf("logging: unknown level %q", s)
}

// Config describes a logger.
type Config struct {
	// Writer receives one JSON object per line.
	Writer io.Writer
	// Level is the most verbose level written.
	Level logiface.Level
	// RateLimits caps how often each call site of a limited message may
	// log, as events per window. Empty disables limiting.
	RateLimits map[time.Duration]int
	// OmitTime drops the time field, for reproducible output.
	OmitTime bool
}

// New builds a stumpy-backed logger from cfg.
func New(cfg Config) *logiface.Logger[logiface.Event] {
	sopts := []stumpy.Option{stumpy.WithWriter(cfg.Writer)}
	if cfg.OmitTime {
		sopts = append(sopts, stumpy.WithTimeField(``))
	}
	opts := []logiface.Option[*stumpy.Event]{
		stumpy.L.WithStumpy(sopts...),
		stumpy.L.WithLevel(cfg.Level),
	}
	if len(cfg.RateLimits) != 0 {
		opts = append(opts, stumpy.L.WithCategoryRateLimits(cfg.RateLimits))
	}
	return stumpy.L.New(opts...).Logger()
}

// ParseRateLimit parses a rate such as "10/1m" into the form accepted by
// Config.RateLimits. An empty string yields nil.
func ParseRateLimit(s string) (map[time.Duration]int, error) {
	if s == `` {
		return nil, nil
	}
	limits := make(map[time.Duration]int)
	for _, part := range strings.Split(s, `,`) {
		count, window, ok := strings.Cut(strings.TrimSpace(part), `/`)
		if !ok {
			return nil, fmt.Errorf("logging: rate %q: want <count>/<duration>", part)
		}
		var n int
		if _, err := fmt.Sscan(count, &n); err != nil || n <= 0 {
			return nil, fmt.Errorf("logging: rate %q: invalid count", part)
		}
		d, err := time.ParseDuration(window)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("logging: rate %q: invalid duration", part)
		}
		if _, ok := limits[d]; ok {
			return nil, fmt.Errorf("logging: rate %q: duplicate duration", part)
		}
		limits[d] = n
	}
	if err := checkRates(limits); err != nil {
		return nil, err
	}
	return limits, nil
}

// checkRates rejects rates the limiter would refuse: each longer window
// must allow more events, at a lower average rate.
func checkRates(limits map[time.Duration]int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("logging: %v", r)
		}
	}()
	catrate.NewLimiter(limits)
	return nil
}
