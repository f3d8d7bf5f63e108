package clock

import (
	"testing"
	"time"
)

func TestMock_Add(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewMock(start)

	c.Add(15 * time.Minute)

	if got := c.Since(start); got != 15*time.Minute {
		t.Errorf("expected 15m elapsed, got %v", got)
	}
	if !c.Now().Equal(start.Add(15 * time.Minute)) {
		t.Errorf("unexpected now %v", c.Now())
	}
}

func TestMock_Set(t *testing.T) {
	c := NewMock(time.Time{})
	target := time.Date(2030, 6, 1, 0, 0, 0, 0, time.UTC)
	c.Set(target)
	if !c.Now().Equal(target) {
		t.Errorf("expected %v, got %v", target, c.Now())
	}
}

func TestRealClock_Since(t *testing.T) {
	c := New()
	before := c.Now().Add(-time.Second)
	if c.Since(before) < time.Second {
		t.Error("expected at least one second elapsed")
	}
}
