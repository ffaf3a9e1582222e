package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMock_AdvanceMovesTimeForward(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMock(start)

	assert.Equal(t, start, m.Now())

	m.Advance(20 * time.Millisecond)
	assert.Equal(t, start.Add(20*time.Millisecond), m.Now())
}

func TestMock_SetPinsExactTime(t *testing.T) {
	m := NewMock(time.Now())
	target := time.Date(2030, 5, 5, 5, 5, 5, 0, time.UTC)
	m.Set(target)
	assert.Equal(t, target, m.Now())
}

func TestRealClock_ReturnsWallClock(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()

	assert.False(t, got.Before(before))
	assert.False(t, got.After(after))
}
