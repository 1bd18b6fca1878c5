package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Validate checks the settings a command mode depends on. Modes: "run",
// "dispatch", "work", "serve", "migrate".
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	needsStore := false
	needsQueue := false
	switch mode {
	case "run":
		needsStore = true
	case "dispatch":
		needsQueue = true
	case "work":
		needsStore, needsQueue = true, true
	case "serve":
		needsStore, needsQueue = true, true
		if c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
	case "migrate":
		needsStore = true
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Catalogue.Path == "" && mode != "migrate" {
		add("catalogue.path is required")
	}

	if needsStore {
		switch c.Store.Driver {
		case "sqlite", "postgres":
			if c.Store.DatabaseURL == "" {
				add("store.database_url is required for driver %s", c.Store.Driver)
			}
		case "file":
			if c.Store.OutputDir == "" {
				add("store.output_dir is required for driver file")
			}
		default:
			add("store.driver must be one of sqlite, postgres, file (got %q)", c.Store.Driver)
		}
	}

	if needsQueue {
		if c.Queue.Addr == "" {
			add("queue.addr is required")
		}
		if c.Queue.MaxDeliveries < 1 {
			add("queue.max_deliveries must be >= 1")
		}
	}

	if mode == "work" || mode == "run" {
		if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 64 {
			add("worker.concurrency must be between 1 and 64")
		}
	}

	if c.Fetch.MaxAttempts < 1 {
		add("fetch.max_attempts must be >= 1")
	}
	if c.Fetch.RatePerSecond < 0 {
		add("fetch.rate_per_second must be >= 0")
	}
	if c.Monitoring.FailureRateThreshold < 0 || c.Monitoring.FailureRateThreshold > 1 {
		add("monitoring.failure_rate_threshold must be between 0 and 1")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}
