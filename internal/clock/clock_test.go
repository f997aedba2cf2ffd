package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	clk := NewFake(time.Unix(0, 0))

	var order []string
	clk.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	clk.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	clk.AfterFunc(5*time.Second, func() { order = append(order, "never") })

	clk.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, 1, clk.Pending())
}

func TestFake_StopPreventsFiring(t *testing.T) {
	clk := NewFake(time.Unix(0, 0))

	fired := false
	tm := clk.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, tm.Stop())

	clk.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFake_StopAfterFireIsNoop(t *testing.T) {
	clk := NewFake(time.Unix(0, 0))

	tm := clk.AfterFunc(time.Second, func() {})
	clk.Advance(time.Second)
	assert.False(t, tm.Stop())
	assert.False(t, tm.Stop())
}

func TestFake_CallbackMayRearm(t *testing.T) {
	clk := NewFake(time.Unix(0, 0))

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 3 {
			clk.AfterFunc(time.Second, tick)
		}
	}
	clk.AfterFunc(time.Second, tick)

	clk.Advance(10 * time.Second)
	assert.Equal(t, 3, count)
}

func TestSystem_NowAndAfterFunc(t *testing.T) {
	clk := System()
	assert.WithinDuration(t, time.Now(), clk.Now(), time.Second)

	done := make(chan struct{})
	clk.AfterFunc(time.Millisecond, func() { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}
