package core

import "time"

type Clock struct {
	startTime time.Time
	elapsed   time.Duration
}

func NewClock() *Clock {
	return &Clock{}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if !c.startTime.IsZero() {
		c.elapsed = time.Since(c.startTime)
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = time.Now()
	c.elapsed = 0
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.startTime = time.Time{}
}

// Elapsed returns the seconds measured at the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed.Seconds()
}

var processStart = time.Now()

// PlatformSeconds is the monotonic wall time in seconds since process start,
// used as the world time stamped on every pushed frame.
func PlatformSeconds() float64 {
	return time.Since(processStart).Seconds()
}
