// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package config loads the feederreader configuration.
//
// Configuration comes from a YAML file unmarshaled over built-in defaults,
// so an absent key keeps its default and lists replace wholesale. Secrets
// never live in the file; they come from the SMTP_PASSWORD and
// TELEGRAM_TOKEN environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the pipeline.
type Config struct {
	// StateDir is where partitions, the filter set and the scan cursor live.
	StateDir string `yaml:"state_dir"`
	// StateBackend selects the storage engine under StateDir: "dir" keeps
	// plain files, "sqlite" keeps a single database file.
	StateBackend string `yaml:"state_backend"`

	Reader   Reader   `yaml:"reader"`
	Filter   Filter   `yaml:"filter"`
	Cleaner  Cleaner  `yaml:"cleaner"`
	Writer   Writer   `yaml:"writer"`
	Notifier Notifier `yaml:"notifier"`
	Monitor  Monitor  `yaml:"monitor"`
}

// Reader lists the feeds to poll.
type Reader struct {
	Feeds []string `yaml:"feeds"`
}

// Filter holds the watch-list of docket numbers.
type Filter struct {
	Dockets []string `yaml:"dockets"`
}

// Cleaner bounds the archive's retention.
type Cleaner struct {
	DaysAgo int `yaml:"days_ago"`
}

// Writer configures the static site output.
type Writer struct {
	Format    string `yaml:"format"` // html, md or csv
	PageSize  int    `yaml:"page_size"`
	OutputDir string `yaml:"output_dir"`
}

// Notifier selects and configures the notification channel.
type Notifier struct {
	Kind     string   `yaml:"kind"` // log, smtp or telegram
	SMTP     SMTP     `yaml:"smtp"`
	Telegram Telegram `yaml:"telegram"`
}

// SMTP describes the mail server used by the smtp notifier. The password
// comes from the SMTP_PASSWORD environment variable.
type SMTP struct {
	Addr     string `yaml:"addr"` // host:port
	From     string `yaml:"from"`
	To       string `yaml:"to"`
	Password string `yaml:"-"`
}

// Telegram describes the chat used by the telegram notifier. The bot token
// comes from the TELEGRAM_TOKEN environment variable.
type Telegram struct {
	ChatID string `yaml:"chat_id"`
	Token  string `yaml:"-"`
}

// Monitor lists the wall-clock times (UTC, "15:04") at which the watch
// subcommand runs the pipeline.
type Monitor struct {
	Every []string `yaml:"every"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		StateDir:     "data",
		StateBackend: "dir",
		Reader: Reader{
			Feeds: []string{
				"https://ecf.dcd.uscourts.gov/cgi-bin/rss_outside.pl",
				"https://ecf.nyed.uscourts.gov/cgi-bin/readyDockets.pl",
			},
		},
		Cleaner: Cleaner{DaysAgo: 90},
		Writer: Writer{
			Format:    "html",
			PageSize:  20,
			OutputDir: "output",
		},
		Notifier: Notifier{Kind: "log"},
		Monitor:  Monitor{Every: []string{"07:00", "20:00"}},
	}
}

// Load reads the configuration from path merged over [Default], then pulls
// secrets from getenv. An empty path skips the file and returns defaults. A
// missing file at a non-empty path is an error.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: %s does not exist", path)
			}
			return nil, fmt.Errorf("config: %w", err)
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.Notifier.SMTP.Password = getenv("SMTP_PASSWORD")
	cfg.Notifier.Telegram.Token = getenv("TELEGRAM_TOKEN")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.StateBackend {
	case "dir", "sqlite":
	default:
		return fmt.Errorf("config: unknown state backend %q", c.StateBackend)
	}
	switch c.Writer.Format {
	case "html", "md", "csv":
	default:
		return fmt.Errorf("config: unknown writer format %q", c.Writer.Format)
	}
	switch c.Notifier.Kind {
	case "log", "smtp", "telegram":
	default:
		return fmt.Errorf("config: unknown notifier %q", c.Notifier.Kind)
	}
	if c.Cleaner.DaysAgo <= 0 {
		return fmt.Errorf("config: retention of %d days makes no sense", c.Cleaner.DaysAgo)
	}
	for _, at := range c.Monitor.Every {
		if _, err := time.Parse("15:04", at); err != nil {
			return fmt.Errorf("config: bad monitor time %q (want HH:MM)", at)
		}
	}
	return nil
}
