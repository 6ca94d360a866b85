package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts time for services and scheduler jobs so tests can
// control it with FakeClock.
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Provide(func() Clock {
	return SystemClock{}
})
