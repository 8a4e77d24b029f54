// ABOUTME: Idle/screensaver controller with a fixed inactivity timeout
// ABOUTME: Exactly one transition each way; runs independently of the channel
package idle

import (
	"log"
	"time"
)

// Timeout is the inactivity window before the screensaver engages.
const Timeout = 5 * time.Minute

// Controller tracks user activity and drives the dim/restore callbacks.
// Not safe for concurrent use; the scheduling loop is its only driver.
type Controller struct {
	lastActivity time.Time
	idle         bool

	onIdle   func()
	onActive func()

	now func() time.Time
}

// NewController starts in the active state with the activity clock fresh.
// Either callback may be nil.
func NewController(onIdle, onActive func()) *Controller {
	c := &Controller{
		onIdle:   onIdle,
		onActive: onActive,
		now:      time.Now,
	}
	c.lastActivity = c.now()
	return c
}

// Idle reports whether the screensaver is engaged.
func (c *Controller) Idle() bool {
	return c.idle
}

// Touch records user activity. If the screensaver is engaged it disengages
// immediately.
func (c *Controller) Touch() {
	c.lastActivity = c.now()
	if !c.idle {
		return
	}
	c.idle = false
	log.Printf("Screensaver off")
	if c.onActive != nil {
		c.onActive()
	}
}

// Step checks the timeout. Called once per scheduler tick; the idle
// transition fires exactly once per quiet period.
func (c *Controller) Step() {
	if c.idle {
		return
	}
	if c.now().Sub(c.lastActivity) < Timeout {
		return
	}
	c.idle = true
	log.Printf("Screensaver on after %s of inactivity", Timeout)
	if c.onIdle != nil {
		c.onIdle()
	}
}
