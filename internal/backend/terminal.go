package backend

import (
	"bytes"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/juju/errors"
	"github.com/mattn/go-isatty"
	"github.com/temoto/robot-util/internal/types"
	"github.com/temoto/robot-util/log2"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

const TerminalTag = "terminal"

const (
	ansiHome       = "\x1b[H"
	ansiClear      = "\x1b[2J"
	ansiHideCursor = "\x1b[?25l"
	ansiShowCursor = "\x1b[?25h"
)

var activeStyle = lipgloss.NewStyle().Reverse(true).Bold(true)

// Terminal emulates panel in raw mode terminal.
// Keys: arrows or j/k rotate, Enter or Space press, q or Ctrl-C quit.
// Viewport is LCD geometry from config when set, otherwise whole terminal.
type Terminal struct {
	log      *log2.Log
	in       io.Reader
	out      io.Writer
	readable func() (bool, error)
	size     func() (int, int, error)
	restore  func() error
	columns  int
	rows     int
	pending  []byte
	pressed  bool
}

var _ types.Backend = new(Terminal)

func OpenTerminal(config *Config, log *log2.Log) (*Terminal, error) {
	fd := int(os.Stdin.Fd())
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return nil, errors.Errorf("stdin is not terminal")
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, errors.Annotate(err, "terminal raw mode")
	}
	outFd := int(os.Stdout.Fd())
	self := &Terminal{
		log: log,
		in:  os.Stdin,
		out: os.Stdout,
		readable: func() (bool, error) {
			fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
			n, err := unix.Poll(fds, 0)
			if err == unix.EINTR {
				return false, nil
			}
			if err != nil {
				return false, err
			}
			return n > 0 && fds[0].Revents&unix.POLLIN != 0, nil
		},
		size:    func() (int, int, error) { return term.GetSize(outFd) },
		restore: func() error { return term.Restore(fd, state) },
		columns: config.LCD.Width,
		rows:    config.LCD.Height,
	}
	_, _ = io.WriteString(self.out, ansiHideCursor+ansiHome+ansiClear)
	return self, nil
}

func (self *Terminal) String() string { return TerminalTag }

// Poll never blocks. Key press is reported as pressed sample followed by released sample.
func (self *Terminal) Poll() (types.InputEvent, bool, error) {
	e := types.InputEvent{Source: TerminalTag}
	if self.pressed {
		self.pressed = false
		return e, true, nil
	}
	ok, err := self.readable()
	if err != nil {
		return e, false, errors.Annotate(err, "terminal poll")
	}
	if ok {
		var buf [64]byte
		n, err := self.in.Read(buf[:])
		if err != nil && err != io.EOF {
			return e, false, errors.Annotate(err, "terminal read")
		}
		self.pending = append(self.pending, buf[:n]...)
	}
	if len(self.pending) == 0 {
		return e, false, nil
	}
	var k keys
	k, self.pending = parseKeys(self.pending)
	if k.quit {
		return e, false, types.ErrQuit
	}
	e.Rotated = k.rotated
	if k.press {
		e.Pressed = true
		self.pressed = true
	}
	return e, k.rotated != 0 || k.press, nil
}

type keys struct {
	rotated int
	press   bool
	quit    bool
}

// parseKeys consumes input up to and including first press,
// returns unconsumed tail. Incomplete escape sequence stays in tail.
func parseKeys(b []byte) (keys, []byte) {
	k := keys{}
	for len(b) > 0 {
		switch c := b[0]; c {
		case 0x03, 'q', 'Q':
			k.quit = true
			return k, nil
		case 'k', 'K':
			k.rotated--
		case 'j', 'J':
			k.rotated++
		case '\r', '\n', ' ':
			k.press = true
			return k, b[1:]
		case 0x1b:
			if len(b) < 3 {
				if len(b) == 1 || b[1] == '[' || b[1] == 'O' {
					return k, b
				}
				b = b[1:]
				continue
			}
			if b[1] == '[' || b[1] == 'O' {
				switch b[2] {
				case 'A', 'D':
					k.rotated--
				case 'B', 'C':
					k.rotated++
				}
				b = b[3:]
				continue
			}
		}
		b = b[1:]
	}
	return k, nil
}

func (self *Terminal) ViewportSize() (int, int, error) {
	if self.columns > 0 && self.rows > 0 {
		return self.columns, self.rows, nil
	}
	w, h, err := self.size()
	if err != nil {
		return 0, 0, errors.Annotate(err, "terminal size")
	}
	return w, h, nil
}

func (self *Terminal) Render(lines []string, active int) error {
	var buf bytes.Buffer
	buf.WriteString(ansiHome + ansiClear)
	for i, line := range lines {
		if i == active {
			line = activeStyle.Render(line)
		}
		buf.WriteString(line)
		if i != len(lines)-1 {
			buf.WriteString("\r\n")
		}
	}
	_, err := self.out.Write(buf.Bytes())
	return errors.Annotate(err, "terminal render")
}

func (self *Terminal) Close() error {
	_, _ = io.WriteString(self.out, ansiHome+ansiClear+ansiShowCursor)
	if self.restore != nil {
		return errors.Annotate(self.restore(), "terminal restore")
	}
	return nil
}

