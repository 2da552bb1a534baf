package health

import (
	"context"
	"fmt"
	"runtime"
)

// Pinger is implemented by pgxpool.Pool and by adapters around other clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks a dependency through its Ping method.
func Ping(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		return nil
	}
}

// GoroutineLimit fails once the process runs more than limit goroutines,
// which usually means requests are piling up behind a stuck dependency.
func GoroutineLimit(limit int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return fmt.Errorf("%d goroutines exceed limit %d", n, limit)
		}
		return nil
	}
}
