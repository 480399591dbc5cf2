// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.astrophena.name/feederreader/internal/cli"
	"go.astrophena.name/feederreader/internal/config"
	"go.astrophena.name/feederreader/internal/filelock"
	"go.astrophena.name/feederreader/internal/filter"
	"go.astrophena.name/feederreader/internal/history"
	"go.astrophena.name/feederreader/internal/logger"
	"go.astrophena.name/feederreader/internal/notify"
	"go.astrophena.name/feederreader/internal/reader"
	"go.astrophena.name/feederreader/internal/store"
	"go.astrophena.name/feederreader/internal/writer"
)

var errAlreadyRunning = errors.New("another feederreader instance is already running")

func main() { cli.Main(new(app)) }

type app struct {
	// flags
	configPath string

	cfg  *config.Config
	logf logger.Logf
	hist *history.Store
	rdr  *reader.Reader
	flt  *filter.Filter

	// overridden in tests
	kv       store.Store
	notifier notify.Notifier
	now      func() time.Time
}

func (a *app) Flags(fs *flag.FlagSet) {
	fs.StringVar(&a.configPath, "config", "", "Load configuration from `path`.")
}

func (a *app) Run(ctx context.Context, env *cli.Env) error {
	if len(env.Args) == 0 {
		return fmt.Errorf("%w: command is required, see -help for usage", cli.ErrInvalidArgs)
	}

	ownKV := a.kv == nil
	if err := a.setup(ctx, env); err != nil {
		return err
	}
	if ownKV {
		defer a.kv.Close()
	}

	switch command := env.Args[0]; command {
	case "run":
		lock, err := a.lock()
		if err != nil {
			return err
		}
		defer lock.Release()
		return a.runOnce(ctx, env)
	case "ingest":
		report, err := a.rdr.ReadFeeds(ctx, a.cfg.Reader.Feeds)
		if err != nil {
			return err
		}
		fmt.Fprintln(env.Stdout, report)
		return nil
	case "filter":
		return a.filterAndNotify(ctx)
	case "sweep":
		return a.sweep(ctx)
	case "write":
		return a.write(ctx, env)
	case "watch":
		lock, err := a.lock()
		if err != nil {
			return err
		}
		defer lock.Release()
		return a.watch(ctx, env)
	case "feeds":
		for _, url := range a.cfg.Reader.Feeds {
			fmt.Fprintln(env.Stdout, url)
		}
		return nil
	default:
		return fmt.Errorf("%w: no such command %q", cli.ErrInvalidArgs, command)
	}
}

func (a *app) setup(ctx context.Context, env *cli.Env) error {
	cfg, err := config.Load(a.configPath, env.Getenv)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logf = env.Logf
	if a.now == nil {
		a.now = time.Now
	}

	if a.kv == nil {
		switch cfg.StateBackend {
		case "sqlite":
			if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
				return err
			}
			kv, err := store.NewSQLite(ctx, filepath.Join(cfg.StateDir, "feederreader.db"))
			if err != nil {
				return err
			}
			a.kv = kv
		default:
			kv, err := store.NewDir(cfg.StateDir)
			if err != nil {
				return err
			}
			a.kv = kv
		}
	}

	a.hist = history.New(a.kv)
	a.hist.Logf = a.logf
	a.rdr = reader.New(a.hist)
	a.rdr.Logf = a.logf
	a.flt = filter.New(a.hist, a.kv)
	a.flt.Logf = a.logf

	if a.notifier == nil {
		switch n := cfg.Notifier; n.Kind {
		case "smtp":
			smtp := notify.NewSMTP(n.SMTP.Addr, n.SMTP.From, n.SMTP.To, n.SMTP.Password)
			smtp.Logf = a.logf
			a.notifier = smtp
		case "telegram":
			tg := notify.NewTelegram(n.Telegram.Token, n.Telegram.ChatID)
			tg.Logf = a.logf
			a.notifier = tg
		default:
			log := notify.NewLogNote(a.kv)
			log.Logf = a.logf
			a.notifier = log
		}
	}

	return nil
}

func (a *app) lock() (filelock.Lock, error) {
	lock, err := filelock.Acquire(
		filepath.Join(a.cfg.StateDir, "feederreader.lock"),
		strconv.Itoa(os.Getpid()),
	)
	if errors.Is(err, filelock.ErrAlreadyLocked) {
		return nil, errAlreadyRunning
	}
	return lock, err
}

// runOnce performs a full pipeline pass: ingest, filter, notify, sweep,
// write. The filter runs before the sweep: a matched record in a partition
// that is about to age out must still be caught and notified.
func (a *app) runOnce(ctx context.Context, env *cli.Env) error {
	if _, err := a.rdr.ReadFeeds(ctx, a.cfg.Reader.Feeds); err != nil {
		return err
	}
	if err := a.filterAndNotify(ctx); err != nil {
		return err
	}
	if err := a.sweep(ctx); err != nil {
		return err
	}
	return a.write(ctx, env)
}

func (a *app) filterAndNotify(ctx context.Context) error {
	newMatches, err := a.flt.Run(ctx, a.cfg.Filter.Dockets)
	if err != nil {
		return err
	}
	return a.notifier.Notify(ctx, newMatches)
}

func (a *app) sweep(ctx context.Context) error {
	deleted, err := a.hist.Sweep(ctx, a.now(), a.cfg.Cleaner.DaysAgo)
	if err != nil {
		return err
	}
	a.logf("sweep: deleted %d partitions older than %d days", deleted, a.cfg.Cleaner.DaysAgo)
	return nil
}

func (a *app) write(ctx context.Context, env *cli.Env) error {
	out, err := store.NewDir(a.cfg.Writer.OutputDir)
	if err != nil {
		return err
	}
	w := writer.New(a.hist, a.flt, out)
	w.Logf = a.logf
	w.Format = writer.Format(a.cfg.Writer.Format)
	w.PageSize = a.cfg.Writer.PageSize
	if w.Format == writer.FormatCSV {
		return w.WriteCSV(ctx, env.Stdout)
	}
	return w.Write(ctx)
}

// watch runs the pipeline at the configured times of day until the context
// is canceled.
func (a *app) watch(ctx context.Context, env *cli.Env) error {
	if len(a.cfg.Monitor.Every) == 0 {
		return errors.New("watch: no monitor times configured")
	}
	for {
		next := nextRun(a.now(), a.cfg.Monitor.Every)
		a.logf("watch: next run at %s", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(a.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if err := a.runOnce(ctx, env); err != nil {
			// A failed pass shouldn't kill the watcher; the next one often
			// succeeds (transient feed or network trouble).
			a.logf("watch: %v", err)
		}
	}
}

// nextRun returns the earliest future occurrence of any of the wall-clock
// times (UTC, "15:04") in every.
func nextRun(now time.Time, every []string) time.Time {
	now = now.UTC()
	var next time.Time
	for _, at := range every {
		t, err := time.Parse("15:04", at)
		if err != nil {
			continue // validated by config.Load
		}
		cand := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC)
		if !cand.After(now) {
			cand = cand.AddDate(0, 0, 1)
		}
		if next.IsZero() || cand.Before(next) {
			next = cand
		}
	}
	return next
}
