package surface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualFrames(t *testing.T) {
	f := NewManualFrames()
	var ran []int

	f.Request(func() { ran = append(ran, 1) })
	cancel := f.Request(func() { ran = append(ran, 2) })
	f.Request(func() { ran = append(ran, 3) })
	cancel()

	assert.Equal(t, 2, f.Pending())
	assert.Equal(t, 2, f.Flush())
	assert.Equal(t, []int{1, 3}, ran)
	assert.Equal(t, 0, f.Pending())
	assert.Equal(t, 0, f.Flush())
}

func TestTimerFrames(t *testing.T) {
	f := NewTimerFrames(time.Millisecond)
	done := make(chan struct{})

	f.Request(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("frame did not run")
	}
}

func TestTimerFramesCancel(t *testing.T) {
	f := NewTimerFrames(20 * time.Millisecond)
	ran := make(chan struct{}, 1)

	cancel := f.Request(func() { ran <- struct{}{} })
	cancel()

	select {
	case <-ran:
		t.Fatal("cancelled frame ran")
	case <-time.After(60 * time.Millisecond):
	}
}
