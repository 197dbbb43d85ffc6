package modem

import "time"

// Clock is the time source used for every deadline computation.
//
// Millis is a free running millisecond counter. It is allowed to wrap around;
// elapsed time is always computed as an unsigned difference. Sleep blocks the
// calling goroutine and is also the polling granularity of token waits.
type Clock interface {
	Millis() uint32
	Sleep(d time.Duration)
}

type systemClock struct {
	start time.Time
}

// SystemClock returns a Clock backed by the monotonic wall clock.
func SystemClock() Clock {
	return systemClock{start: time.Now()}
}

func (c systemClock) Millis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

func (systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// millis converts a duration to a millisecond budget, saturating on overflow.
func millis(d time.Duration) uint32 {
	ms := d.Milliseconds()
	switch {
	case ms <= 0:
		return 0
	case ms > int64(^uint32(0)):
		return ^uint32(0)
	}
	return uint32(ms)
}
