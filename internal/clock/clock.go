package clock

import (
	"context"
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)

type Clock interface {
	Now(ctx context.Context) time.Time
}

type nowOverrideKey struct{}

// WithNow pins the clock reading for everything downstream of ctx. The
// scheduler uses it so one sweep evaluates every row against the same instant.
func WithNow(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, nowOverrideKey{}, t.UTC())
}

func nowFromContext(ctx context.Context) (time.Time, bool) {
	if ctx == nil {
		return time.Time{}, false
	}
	t, ok := ctx.Value(nowOverrideKey{}).(time.Time)
	return t, ok
}
