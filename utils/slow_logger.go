package utils

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/segfront/logging"
)

// SlowLogger warns after 2s, then 3s later, then every 5s until the returned function is called
// or ctx is done. It is meant to wrap calls that cannot be interrupted.
func SlowLogger(
	ctx context.Context, clk clock.Clock, logger logging.Logger, msg string, keysAndValues ...interface{},
) func() {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	start := clk.Now()
	timer := clk.Timer(2 * time.Second)
	next := 3 * time.Second
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}
			elapsed := clk.Since(start).Round(time.Second).String()
			logger.CWarnw(ctx, msg, append(keysAndValues, "time_elapsed", elapsed)...)
			timer.Reset(next)
			next = 5 * time.Second
		}
	}()
	return func() {
		cancel()
		timer.Stop()
		<-done
	}
}
