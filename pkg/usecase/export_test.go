package usecase

// ClockArgs is exported for testing
type ClockArgs = clockArgs

// ParseClockArgs is exported for testing
var ParseClockArgs = parseClockArgs

// SweepMonths is exported for testing
var SweepMonths = sweepMonths

// NewKeyLock returns lock and size functions of a fresh key lock for testing
func NewKeyLock() (func(string) func(), func() int) {
	l := newKeyLock()
	return l.lock, l.size
}
