package sam

import (
	"time"

	"github.com/go-logr/logr"
)

// Config holds the session configuration.
type Config struct {
	// Logger receives phase changes at Info and register traces at V(1)
	Logger logr.Logger

	// PollTimeout bounds every wait on a completion flag
	PollTimeout time.Duration

	// PollInterval is the pause between status reads; zero re-reads at once
	PollInterval time.Duration

	// SettleDelay is the pause between issuing a chip erase and polling for it
	SettleDelay time.Duration

	// ProgrammingClock is the SWCLK frequency set by ProgramStart when the
	// accessor supports it. Zero leaves the clock alone.
	ProgrammingClock int

	// Progress is called once per row by Program, Verify and Dump (optional)
	Progress ProgressCallback

	// Metrics collects operation counters (optional)
	Metrics *Metrics
}

func defaultConfig() Config {
	return Config{
		Logger:      logr.Discard(),
		PollTimeout: 5 * time.Second,
		SettleDelay: 100 * time.Millisecond,
	}
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithLogger sets the logger used for session operations.
//
// Example:
//
//	s := sam.NewSession(probe, sam.WithLogger(zapr.NewLogger(zl)))
func WithLogger(log logr.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

// WithPollTimeout bounds how long a completion flag is polled before the
// operation fails with a *HardwareHangError. Non-positive values are ignored.
func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.PollTimeout = d
		}
	}
}

// WithPollInterval sets the pause between status reads while polling.
func WithPollInterval(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.PollInterval = d
		}
	}
}

// WithSettleDelay sets the wait between starting a chip erase and the first
// status read. Default is 100ms.
func WithSettleDelay(d time.Duration) Option {
	return func(c *Config) {
		if d >= 0 {
			c.SettleDelay = d
		}
	}
}

// WithProgrammingClock sets the SWCLK frequency used while programming.
func WithProgrammingClock(hz int) Option {
	return func(c *Config) {
		if hz >= 0 {
			c.ProgrammingClock = hz
		}
	}
}

// WithProgress sets a callback to track Program, Verify and Dump progress.
//
// Example:
//
//	s := sam.NewSession(probe,
//	    sam.WithProgress(func(p sam.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
func WithProgress(cb ProgressCallback) Option {
	return func(c *Config) {
		c.Progress = cb
	}
}

// WithMetrics records operation outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// Progress reports how far an image operation has got.
type Progress struct {
	// Phase is "programming", "verifying" or "reading"
	Phase string

	// CurrentRow is the row just completed (1-based)
	CurrentRow int

	// TotalRows is the number of rows the operation covers
	TotalRows int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// Bytes is the number of image bytes handled so far
	Bytes int

	// Elapsed is the time since the operation started
	Elapsed time.Duration
}

// ProgressCallback should return quickly; it runs on the programming path.
type ProgressCallback func(Progress)
