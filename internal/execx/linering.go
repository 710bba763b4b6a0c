package execx

import (
	"bytes"
	"sync"
)

// LineRing retains the newest stderr lines written to it. ffmpeg emits
// megabytes of progress output on a long transcode; when an encode
// fails only the tail is worth attaching to the error.
type LineRing struct {
	mu     sync.Mutex
	tail   []string
	next   int
	filled bool
}

// NewLineRing returns a ring retaining up to capacity lines.
func NewLineRing(capacity int) *LineRing {
	if capacity < 1 {
		capacity = 50
	}
	return &LineRing{tail: make([]string, capacity)}
}

// Write implements io.Writer. Input is split on newlines and blank
// lines are skipped. A line straddling two writes lands as two entries,
// which is acceptable for stderr capture.
func (r *LineRing) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, raw := range bytes.Split(p, []byte{'\n'}) {
		if len(raw) == 0 {
			continue
		}
		r.tail[r.next] = string(raw)
		r.next++
		if r.next == len(r.tail) {
			r.next = 0
			r.filled = true
		}
	}
	return len(p), nil
}

// LastN returns up to n retained lines, oldest first.
func (r *LineRing) LastN(n int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []string
	if r.filled {
		out = append(out, r.tail[r.next:]...)
		out = append(out, r.tail[:r.next]...)
	} else {
		out = append(out, r.tail[:r.next]...)
	}
	if n < 0 {
		n = 0
	}
	if n < len(out) {
		out = out[len(out)-n:]
	}
	return out
}
