package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)

func TestManual_AdvanceFiresInOrder(t *testing.T) {
	c := NewManual(epoch)
	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "b") })
	c.AfterFunc(time.Second, func() { fired = append(fired, "a") })
	c.AfterFunc(5*time.Second, func() { fired = append(fired, "c") })

	c.Advance(3 * time.Second)
	if len(fired) != 2 || fired[0] != "a" || fired[1] != "b" {
		t.Fatalf("fired = %v, want [a b]", fired)
	}
	if got := c.Now(); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Now() = %v", got)
	}
	if c.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", c.Pending())
	}
}

func TestManual_CallbackSeesDeadline(t *testing.T) {
	c := NewManual(epoch)
	var at time.Time
	c.AfterFunc(time.Second, func() { at = c.Now() })
	c.Advance(10 * time.Second)
	if !at.Equal(epoch.Add(time.Second)) {
		t.Errorf("callback ran at %v, want %v", at, epoch.Add(time.Second))
	}
}

func TestManual_RescheduleWithinWindow(t *testing.T) {
	c := NewManual(epoch)
	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	if ticks != 5 {
		t.Errorf("ticks = %d, want 5", ticks)
	}
}

func TestManual_Stop(t *testing.T) {
	c := NewManual(epoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop() = false on pending timer")
	}
	if tm.Stop() {
		t.Error("second Stop() = true")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestManual_ZeroDelayFiresOnAdvanceZero(t *testing.T) {
	c := NewManual(epoch)
	fired := false
	c.AfterFunc(0, func() { fired = true })
	c.Advance(0)
	if !fired {
		t.Error("zero-delay timer did not fire")
	}
}

func TestReal_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
}
