package plugin

// Counter is a cursor over [min, max] that wraps around at both ends.
type Counter struct {
	value, min, max int
}

// NewCounter returns a counter at min.
func NewCounter(min, max int) Counter {
	return Counter{value: min, min: min, max: max}
}

// Value returns the current position.
func (c *Counter) Value() int {
	return c.value
}

// Increment advances the counter, wrapping from max to min.
func (c *Counter) Increment() int {
	if c.value == c.max {
		c.value = c.min
	} else {
		c.value++
	}
	return c.value
}

// Decrement retreats the counter, wrapping from min to max.
func (c *Counter) Decrement() int {
	if c.value == c.min {
		c.value = c.max
	} else {
		c.value--
	}
	return c.value
}
