package execx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineRingKeepsTail(t *testing.T) {
	r := NewLineRing(3)
	for i := 1; i <= 5; i++ {
		_, err := r.Write([]byte(fmt.Sprintf("line %d\n", i)))
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"line 3", "line 4", "line 5"}, r.LastN(3))
	assert.Equal(t, []string{"line 5"}, r.LastN(1))
}

func TestLineRingSplitsMultilineWrites(t *testing.T) {
	r := NewLineRing(10)
	_, err := r.Write([]byte("a\nb\nc\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, r.LastN(10))
}

func TestLineRingDropsEmptyLines(t *testing.T) {
	r := NewLineRing(10)
	_, err := r.Write([]byte("a\n\n\nb\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.LastN(10))
}

func TestLineRingClampsRequest(t *testing.T) {
	r := NewLineRing(2)
	_, _ = r.Write([]byte("x\ny\n"))
	assert.Len(t, r.LastN(100), 2)
}

func TestFakeRunnerMatchesInOrder(t *testing.T) {
	f := &FakeRunner{
		Stubs: []Stub{
			{
				Match: func(c Command) bool { return c.Path == "ffprobe" },
				Res:   Result{ExitOk: true, Stdout: []byte("{}")},
			},
			{
				Match: func(c Command) bool { return true },
				Res:   Result{ExitOk: false, ExitCode: 1},
			},
		},
	}

	res, err := f.Run(context.Background(), Command{Path: "ffprobe"})
	require.NoError(t, err)
	assert.True(t, res.ExitOk)

	res, err = f.Run(context.Background(), Command{Path: "ffmpeg"})
	require.NoError(t, err)
	assert.False(t, res.ExitOk)
	assert.Equal(t, 2, f.CallCount())
}

func TestFakeRunnerDefaultOnNoMatch(t *testing.T) {
	f := &FakeRunner{Default: Result{ExitOk: true}}
	res, err := f.Run(context.Background(), Command{Path: "ffmpeg"})
	require.NoError(t, err)
	assert.True(t, res.ExitOk)
}

func TestFakeRunnerTouchOutputLastArg(t *testing.T) {
	out := filepath.Join(t.TempDir(), "nested", "out.mp4")
	f := &FakeRunner{
		Stubs: []Stub{{
			Match:       func(Command) bool { return true },
			Res:         Result{ExitOk: true},
			TouchOutput: -1,
		}},
	}

	_, err := f.Run(context.Background(), Command{Path: "ffmpeg", Args: []string{"-i", "in.mp4", out}})
	require.NoError(t, err)

	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestFakeRunnerTouchOutputExplicitIndex(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out.jpg")
	f := &FakeRunner{
		Stubs: []Stub{{
			Match:       func(Command) bool { return true },
			Res:         Result{ExitOk: true},
			TouchOutput: 2,
		}},
	}

	_, err := f.Run(context.Background(), Command{Path: "ffmpeg", Args: []string{"-i", "in.mp4", out, "-y"}})
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestProcessRunnerRejectsEmptyPath(t *testing.T) {
	r := NewProcessRunner()
	_, err := r.Run(context.Background(), Command{})
	assert.Error(t, err)
}
