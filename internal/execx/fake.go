package execx

import (
	"context"
	"os"
	"path/filepath"
	"sync"
)

// FakeRunner scripts subprocess results for tests. Each invocation is
// matched against Stubs in order by a caller-supplied predicate; unmatched
// invocations return Default.
type FakeRunner struct {
	mu    sync.Mutex
	Stubs []Stub
	// Default is returned when no stub matches. Zero value means a failed
	// invocation (ExitOk=false).
	Default Result
	// Calls records every command in invocation order.
	Calls []Command
}

// Stub pairs a predicate with the result (and optional side effect) it
// produces.
type Stub struct {
	Match func(Command) bool
	Res   Result
	// TouchOutput, when non-zero, indexes into Args: the matched
	// invocation creates a non-empty file at that argument's path (-1
	// means the last argument). This mimics transcode runs whose success
	// contract is "exit 0 and output exists with non-zero size".
	TouchOutput int
}

func (f *FakeRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	f.Calls = append(f.Calls, cmd)
	stubs := f.Stubs
	f.mu.Unlock()

	for _, s := range stubs {
		if s.Match != nil && s.Match(cmd) {
			idx := s.TouchOutput
			if idx == -1 {
				idx = len(cmd.Args) - 1
			}
			if idx > 0 && idx < len(cmd.Args) {
				p := cmd.Args[idx]
				_ = os.MkdirAll(filepath.Dir(p), 0o755)
				_ = os.WriteFile(p, []byte("x"), 0o644)
			}
			return s.Res, nil
		}
	}
	return f.Default, nil
}

// CallCount returns how many invocations have been recorded.
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
