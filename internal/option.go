package internal

import (
	"io"
	"os"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config  *Config
	version string
	out     io.Writer // command output (reports, summaries)
	logOut  io.Writer
	status  io.Writer // progress line
	region  string
}

func newApplication(opts []Option) *application {
	app := &application{
		version: "dev",
		out:     os.Stdout,
		logOut:  os.Stdout,
		status:  os.Stderr,
	}
	for _, opt := range opts {
		opt(app)
	}
	return app
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithVersion sets the version reported by the MCP server.
func WithVersion(v string) Option {
	return func(a *application) {
		if v != "" {
			a.version = v
		}
	}
}

// WithOutput redirects command output. Default is os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *application) {
		a.out = w
	}
}

// WithLogOutput redirects the JSON log stream. Default is os.Stdout.
func WithLogOutput(w io.Writer) Option {
	return func(a *application) {
		a.logOut = w
	}
}

// WithStatusOutput redirects the progress line. Default is os.Stderr.
func WithStatusOutput(w io.Writer) Option {
	return func(a *application) {
		a.status = w
	}
}

// WithRegion restricts the report command to one region.
func WithRegion(region string) Option {
	return func(a *application) {
		a.region = region
	}
}
