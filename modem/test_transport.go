package modem

import (
	"bytes"
	"io"
	"strings"
	"sync"
	"time"
)

// TestClock is a manually advanced Clock. Sleep advances it instead of
// blocking, by at least one millisecond, so token waits terminate
// deterministically.
type TestClock struct {
	mu  sync.Mutex
	now uint32
}

// NewTestClock returns a clock reading start milliseconds.
func NewTestClock(start uint32) *TestClock {
	return &TestClock{now: start}
}

func (c *TestClock) Millis() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *TestClock) Sleep(d time.Duration) {
	ms := millis(d)
	if ms == 0 {
		ms = 1
	}
	c.Advance(ms)
}

// Advance moves the clock forward by ms, wrapping around like the real
// counter.
func (c *TestClock) Advance(ms uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += ms
}

// Step is a chunk of module output delivered a fixed time after the write
// that triggered it.
type Step struct {
	After time.Duration
	Data  string
}

// After is shorthand for a Step.
func After(d time.Duration, data string) Step {
	return Step{After: d, Data: data}
}

type pendingChunk struct {
	due  uint32
	data []byte
}

type reply struct {
	match string
	steps []Step
}

// TestTransport is a test helper that simulates the module end of the
// stream. Output becomes visible once the clock reaches its due time, and
// scripted replies are scheduled when a write containing their match
// string is seen. Replies are consumed in the order they were registered.
type TestTransport struct {
	mu      sync.Mutex
	clock   Clock
	buf     []byte
	pending []pendingChunk
	replies []reply
	writes  []string
	// WriteErr, when set, is returned by every Write.
	WriteErr error
}

// NewTestTransport creates a test transport driven by clock.
func NewTestTransport(clock Clock) *TestTransport {
	return &TestTransport{clock: clock}
}

// Feed makes data available immediately.
func (t *TestTransport) Feed(data string) {
	t.FeedAfter(0, data)
}

// FeedAfter makes data available d from now.
func (t *TestTransport) FeedAfter(d time.Duration, data string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.schedule(d, data)
}

// Reply registers module output to produce when a write containing match
// arrives.
func (t *TestTransport) Reply(match string, steps ...Step) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replies = append(t.replies, reply{match: match, steps: steps})
}

// Writes returns everything written so far, one entry per Write call.
func (t *TestTransport) Writes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.writes...)
}

// Buffered returns the number of delivered but unconsumed bytes.
func (t *TestTransport) Buffered() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pump()
	return len(t.buf)
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.WriteErr != nil {
		return 0, t.WriteErr
	}
	t.writes = append(t.writes, string(p))
	if len(t.replies) > 0 && strings.Contains(string(p), t.replies[0].match) {
		r := t.replies[0]
		t.replies = t.replies[1:]
		for _, s := range r.steps {
			t.schedule(s.After, s.Data)
		}
	}
	return len(p), nil
}

func (t *TestTransport) Available() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pump()
	return len(t.buf)
}

func (t *TestTransport) Find(token string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pump()
	i := bytes.Index(t.buf, []byte(token))
	if i < 0 {
		return false
	}
	t.buf = t.buf[i+len(token):]
	return true
}

func (t *TestTransport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pump()
	if len(t.buf) == 0 {
		return 0, io.EOF
	}
	c := t.buf[0]
	t.buf = t.buf[1:]
	return c, nil
}

func (t *TestTransport) schedule(d time.Duration, data string) {
	t.pending = append(t.pending, pendingChunk{
		due:  t.clock.Millis() + millis(d),
		data: []byte(data),
	})
}

// pump moves every chunk whose due time has passed into the buffer,
// preserving scheduling order among chunks that are due.
func (t *TestTransport) pump() {
	now := t.clock.Millis()
	kept := t.pending[:0]
	for _, c := range t.pending {
		if int32(now-c.due) >= 0 {
			t.buf = append(t.buf, c.data...)
		} else {
			kept = append(kept, c)
		}
	}
	t.pending = kept
}
