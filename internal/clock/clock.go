package clock

import "time"

// Clock abstracts time for components that need deterministic tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

// NewSystem returns a Clock backed by the wall clock in UTC.
func NewSystem() Clock {
	return systemClock{}
}
