package backend

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/robot-util/internal/types"
	"github.com/temoto/robot-util/log2"
)

func TestParseKeys(t *testing.T) {
	t.Parallel()

	type Case struct {
		name       string
		input      string
		expect     keys
		expectTail string
	}
	cases := []Case{
		{"empty", "", keys{}, ""},
		{"vi", "jjk", keys{rotated: 1}, ""},
		{"arrows", "\x1b[B\x1b[B\x1b[A\x1b[C", keys{rotated: 2}, ""},
		{"press-stops", "j\rjj", keys{rotated: 1, press: true}, "jj"},
		{"space", " ", keys{press: true}, ""},
		{"quit", "jq\r", keys{rotated: 1, quit: true}, ""},
		{"ctrl-c", "\x03", keys{quit: true}, ""},
		{"partial-escape", "j\x1b[", keys{rotated: 1}, "\x1b["},
		{"lone-escape", "\x1b", keys{}, "\x1b"},
		{"escape-then-key", "\x1bj", keys{rotated: 1}, ""},
		{"unknown", "xyz\x1b[Z", keys{}, ""},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			k, tail := parseKeys([]byte(c.input))
			assert.Equal(t, c.expect, k)
			assert.Equal(t, c.expectTail, string(tail))
		})
	}
}

func newTestTerminal(input string) (*Terminal, *bytes.Buffer) {
	in := bytes.NewBufferString(input)
	out := &bytes.Buffer{}
	return &Terminal{
		in:       in,
		out:      out,
		readable: func() (bool, error) { return in.Len() > 0, nil },
		size:     func() (int, int, error) { return 80, 24, nil },
	}, out
}

func TestTerminalPoll(t *testing.T) {
	t.Parallel()

	term, _ := newTestTerminal("jj\rk")
	e, ok, err := term.Poll()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, e.Rotated)
	assert.True(t, e.Pressed)

	e, ok, err = term.Poll()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 0, e.Rotated)
	assert.False(t, e.Pressed)

	e, ok, err = term.Poll()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, -1, e.Rotated)

	_, ok, err = term.Poll()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTerminalQuit(t *testing.T) {
	t.Parallel()

	term, _ := newTestTerminal("q")
	_, _, err := term.Poll()
	assert.Equal(t, types.ErrQuit, errors.Cause(err))
}

func TestTerminalPollError(t *testing.T) {
	t.Parallel()

	term, _ := newTestTerminal("")
	term.readable = func() (bool, error) { return false, fmt.Errorf("bad fd") }
	_, _, err := term.Poll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad fd")
}

func TestTerminalRender(t *testing.T) {
	t.Parallel()

	term, out := newTestTerminal("")
	w, h, err := term.ViewportSize()
	require.NoError(t, err)
	assert.Equal(t, 80, w)
	assert.Equal(t, 24, h)
	term.columns, term.rows = 20, 4
	w, h, _ = term.ViewportSize()
	assert.Equal(t, 20, w)
	assert.Equal(t, 4, h)

	require.NoError(t, term.Render([]string{"Bluetooth <", "Exit"}, 0))
	s := out.String()
	assert.True(t, strings.HasPrefix(s, ansiHome+ansiClear))
	assert.Contains(t, s, "Bluetooth <")
	assert.True(t, strings.HasSuffix(s, "\r\nExit"))

	out.Reset()
	require.NoError(t, term.Close())
	assert.Contains(t, out.String(), ansiShowCursor)
}

type mockScreen struct {
	width, height int
	lines         map[int]string
	light         []bool
	err           error
	closed        bool
}

func (self *mockScreen) Size() (int, int) { return self.width, self.height }
func (self *mockScreen) WriteLine(row int, s string) error {
	if self.err != nil {
		return self.err
	}
	self.lines[row] = s
	return nil
}
func (self *mockScreen) SetBacklight(on bool) error {
	self.light = append(self.light, on)
	return nil
}
func (self *mockScreen) Close() error {
	self.closed = true
	return nil
}

type closeRecorder struct {
	name  string
	order *[]string
}

func (self closeRecorder) Close() error {
	*self.order = append(*self.order, self.name)
	return nil
}

func TestEmbedded(t *testing.T) {
	t.Parallel()

	screen := &mockScreen{width: 20, height: 4, lines: map[int]string{}}
	in := types.NewMockBackend(0, 0)
	in.Push(types.InputEvent{Rotated: 1})
	order := []string{}
	b := NewEmbedded(in, screen, log2.NewTest(t, log2.LDebug),
		closeRecorder{"chip", &order}, closeRecorder{"encoder", &order})

	e, ok, err := b.Poll()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, e.Rotated)

	w, h, err := b.ViewportSize()
	require.NoError(t, err)
	assert.Equal(t, 20, w)
	assert.Equal(t, 4, h)

	screen.lines[2] = "stale"
	require.NoError(t, b.Render([]string{"A <", "B"}, 0))
	assert.Equal(t, map[int]string{0: "A <", 1: "B", 2: "", 3: ""}, screen.lines)

	require.NoError(t, b.SetBacklight(false))
	assert.Equal(t, []bool{false}, screen.light)

	screen.err = fmt.Errorf("nack")
	assert.Error(t, b.Render([]string{"A"}, 0))

	require.NoError(t, b.Close())
	assert.True(t, screen.closed)
	assert.Equal(t, []string{"encoder", "chip"}, order)
}

func TestOpenUnknown(t *testing.T) {
	t.Parallel()

	_, err := Open("hologram", &Config{}, log2.NewTest(t, log2.LDebug))
	require.Error(t, err)
	assert.True(t, errors.IsNotValid(err))
}
