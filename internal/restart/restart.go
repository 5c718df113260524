// Package restart implements the §5 auto-restart uptime poller: a
// background task that exec's the process again with its original
// arguments once it has been running longer than a configured threshold,
// giving a graceful way to pick up host/dependency changes without an
// external supervisor.
//
// Grounded on the teacher's cmd/ process-lifecycle conventions (structured
// slog around process start/stop) and generalised into a standalone,
// schedule-driven poller using internal/schedule for the check-interval
// cron expression.
package restart

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/nextlevelbuilder/discordctx/internal/schedule"
)

// Config holds the auto-restart policy (§5: "a background task polls
// process uptime against a configured threshold (default 24h) every
// check-interval minutes").
type Config struct {
	Threshold     time.Duration // default 24h
	CheckInterval time.Duration // default interval between polls, in minutes granularity
}

// DefaultConfig matches the spec's stated defaults.
func DefaultConfig() Config {
	return Config{Threshold: 24 * time.Hour, CheckInterval: 15 * time.Minute}
}

// Poller tracks process start time and triggers a graceful shutdown +
// re-exec once Config.Threshold is crossed.
type Poller struct {
	cfg       Config
	startedAt time.Time
	shutdown  func(context.Context) error
}

// NewPoller creates a Poller. shutdown is called to let the host drain
// in-flight work (inline workers, OCR queue, media-cache flush) before the
// process re-execs itself.
func NewPoller(cfg Config, shutdown func(context.Context) error) *Poller {
	return &Poller{cfg: cfg, startedAt: time.Now(), shutdown: shutdown}
}

// Run polls on the configured interval until ctx is cancelled or the uptime
// threshold is crossed, in which case it shuts down gracefully and execs a
// fresh copy of the binary with the original arguments.
func (p *Poller) Run(ctx context.Context) {
	checkEvery := int(p.cfg.CheckInterval / time.Minute)
	expr := schedule.EveryMinutes(checkEvery)

	schedule.Run(ctx, expr, func(tickCtx context.Context) {
		uptime := time.Since(p.startedAt)
		if uptime < p.cfg.Threshold {
			return
		}
		slog.Info("restart: uptime threshold crossed, restarting", "uptime", uptime, "threshold", p.cfg.Threshold)
		if err := p.restart(tickCtx); err != nil {
			slog.Error("restart: failed to restart process", "error", err)
		}
	})
}

func (p *Poller) restart(ctx context.Context) error {
	if p.shutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := p.shutdown(shutdownCtx); err != nil {
			slog.Warn("restart: graceful shutdown reported an error, restarting anyway", "error", err)
		}
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("restart: resolve executable path: %w", err)
	}

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("restart: start replacement process: %w", err)
	}

	slog.Info("restart: replacement process started, exiting", "pid", cmd.Process.Pid)
	os.Exit(0)
	return nil
}
