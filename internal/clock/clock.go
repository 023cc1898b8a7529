package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock provides the current time. Services depend on it so tests can pin
// "now" to a fixed instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in UTC.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(func() Clock { return SystemClock{} }),
)
