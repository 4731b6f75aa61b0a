package metrics

import "time"

// Recorder receives engine events. Implementations must be safe for
// concurrent use.
type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

// Noop drops all observations.
type Noop struct{}

func (Noop) IncCounter(string, map[string]string) {}

func (Noop) ObserveLatency(string, time.Duration, map[string]string) {}
