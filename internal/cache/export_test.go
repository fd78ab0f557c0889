package cache

import "time"

// SetClock replaces the time source.
func (c *File) SetClock(now func() time.Time) { c.now = now }
