// Package schedule evaluates cron-style expressions that drive the
// periodic conversation-prune and index-maintenance sweeps (at fixed
// intervals; a channel's prune_interval_hours is not read) and the §5
// auto-restart uptime poll interval. Grounded on the teacher's go.mod dependency on
// github.com/adhocore/gronx (its own cron-tool wiring in cmd/gateway.go
// pulls the same library in for job scheduling); this package narrows it to
// the two polling loops this system needs rather than a full job store.
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// ValidateExpr reports whether expr is a syntactically valid cron
// expression. No configuration is loaded as a cron expression, so nothing
// falls back on an invalid one; Run itself logs and returns when handed an
// invalid expression.
func ValidateExpr(expr string) bool {
	return gronx.New().IsValid(expr)
}

// EveryHours renders a simple "every N hours" cron expression, used for the
// periodic conversation-prune and index-maintenance sweeps.
func EveryHours(n int) string {
	if n <= 0 {
		n = 1
	}
	return fmt.Sprintf("0 */%d * * *", n)
}

// EveryMinutes renders a simple "every N minutes" cron expression, used for
// the auto-restart uptime poll (§5, default check interval in minutes).
func EveryMinutes(n int) string {
	if n <= 0 {
		n = 1
	}
	return fmt.Sprintf("*/%d * * * *", n)
}

// Run polls expr once a minute (gronx's cron grain) and invokes fn every
// tick where the expression is due, until ctx is cancelled. A malformed expr
// is logged once and the loop exits rather than spinning forever on a
// config error.
func Run(ctx context.Context, expr string, fn func(context.Context)) {
	gron := gronx.New()
	if !gron.IsValid(expr) {
		slog.Error("schedule: invalid cron expression, loop not started", "expr", expr)
		return
	}

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			due, err := gron.IsDue(expr, now)
			if err != nil {
				slog.Error("schedule: evaluate cron expression", "expr", expr, "error", err)
				continue
			}
			if due {
				fn(ctx)
			}
		}
	}
}
