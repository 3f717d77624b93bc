package hook

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunnerExecutesSuccessfulCommand(t *testing.T) {
	r := NewRunner(4)
	defer r.Stop()

	done := make(chan struct{})
	go func() {
		r.run(Job{Monitor: "m1", Backend: "a", Command: "true", Timeout: time.Second})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("hook did not complete")
	}
}

func TestRunnerKillsTimedOutCommand(t *testing.T) {
	r := NewRunner(4)
	defer r.Stop()

	start := time.Now()
	r.run(Job{Monitor: "m1", Backend: "a", Command: "sleep 5", Timeout: 100 * time.Millisecond})
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 2*time.Second, "a hung script must not delay the caller past its timeout")
}

func TestRunnerEnqueueNeverBlocksOnFullQueue(t *testing.T) {
	r := &Runner{queue: make(chan Job, 1), done: make(chan struct{}), unknown: newUnknownTokenLogger(nil)}
	// No worker goroutine running: the queue will fill immediately.
	r.Enqueue(Job{Monitor: "m1", Backend: "a", Command: "true"})
	r.Enqueue(Job{Monitor: "m1", Backend: "b", Command: "true"}) // would block without the select/default

	assert.Len(t, r.queue, 1)
}

func TestRunnerRenderDelegatesToTemplate(t *testing.T) {
	r := NewRunner(1)
	defer r.Stop()

	out := r.Render("$EVENT", Context{Event: "up"})
	assert.Equal(t, "up", out)
}
