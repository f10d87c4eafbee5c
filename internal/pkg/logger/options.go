package logger

// Option defines a function to modify logger configuration
type Option func(*Config)

// WithLevel sets the log level
func WithLevel(level string) Option {
	return func(c *Config) {
		c.Level = level
	}
}

// WithFormat sets the log format (json or console)
func WithFormat(format string) Option {
	return func(c *Config) {
		c.Format = format
	}
}

// WithOutput sets the log output (console, file, both or discard)
func WithOutput(output string) Option {
	return func(c *Config) {
		c.Output = output
	}
}

// WithFile sets the rotated log file and its retention
func WithFile(filename string, maxSizeMB, maxAgeDays, maxBackups int) Option {
	return func(c *Config) {
		c.File.Filename = filename
		c.File.MaxSize = maxSizeMB
		c.File.MaxAge = maxAgeDays
		c.File.MaxBackups = maxBackups
	}
}

// WithStacktrace toggles stacktraces on error entries
func WithStacktrace(enable bool) Option {
	return func(c *Config) {
		c.EnableStacktrace = enable
	}
}

// NewWithOptions creates a logger from DefaultConfig adjusted by opts
func NewWithOptions(opts ...Option) (*Logger, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return New(cfg)
}

// Development returns a debug console logger
func Development() (*Logger, error) {
	return NewWithOptions(
		WithLevel("debug"),
		WithFormat("console"),
		WithOutput("console"),
		WithStacktrace(false),
	)
}

// Production returns a json logger writing to stdout and a rotated file
func Production(filename string) (*Logger, error) {
	return NewWithOptions(
		WithLevel("info"),
		WithFormat("json"),
		WithOutput("both"),
		WithFile(filename, 100, 30, 10),
	)
}
