package log2

import (
	"bytes"
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBuffered(level Level) (*Log, *bytes.Buffer) {
	buf := bytes.NewBuffer(nil)
	l := NewWriter(buf, level)
	l.SetFlags(0)
	return l, buf
}

func TestLevels(t *testing.T) {
	t.Parallel()

	cases := []struct {
		level  Level
		expect string
	}{
		{LError, "error: e1\n"},
		{LInfo, "error: e1\ni1\n"},
		{LDebug, "error: e1\ni1\ndebug: d1\n"},
		{LAll, "error: e1\ni1\ndebug: d1\n"},
	}
	for _, c := range cases {
		c := c
		t.Run(fmt.Sprintf("level=%d", c.level), func(t *testing.T) {
			l, buf := newBuffered(c.level)
			l.Errorf("e%d", 1)
			l.Infof("i%d", 1)
			l.Debugf("d%d", 1)
			assert.Equal(t, c.expect, buf.String())
		})
	}
}

func TestSetLevel(t *testing.T) {
	t.Parallel()
	l, buf := newBuffered(LDebug)
	l.Debug("before")
	l.SetLevel(LInfo)
	l.Debug("after")
	l.Info("menu=main")
	assert.Equal(t, "debug: before\nmenu=main\n", buf.String())
	assert.False(t, l.Enabled(LDebug))
	assert.True(t, l.Enabled(LError))
}

func TestCaller(t *testing.T) {
	t.Parallel()
	l, buf := newBuffered(LAll)
	l.SetFlags(log.Lshortfile)
	l.Infof("ui tick")
	assert.True(t, strings.HasPrefix(buf.String(), "log2_test.go:"), buf.String())
	assert.True(t, strings.HasSuffix(buf.String(), ": ui tick\n"), buf.String())
}

func TestPrintfAdapter(t *testing.T) {
	t.Parallel()
	l, buf := newBuffered(LInfo)
	l.Printf("mqtt client=%s", "robot")
	l.Println("connected", 1)
	assert.Equal(t, "mqtt client=robot\nconnected 1\n", buf.String())
}

func TestErrorFunc(t *testing.T) {
	t.Parallel()
	l, buf := newBuffered(LError)
	var reported []error
	l.SetErrorFunc(func(e error) { reported = append(reported, e) })

	sentinel := fmt.Errorf("pair failed")
	l.Error(sentinel)
	l.Errorf("adapter=%s missing", "hci0")
	l.Error("plain", " text")
	require.Len(t, reported, 3)
	assert.Equal(t, sentinel, reported[0])
	assert.Equal(t, "adapter=hci0 missing", reported[1].Error())
	assert.Equal(t, "plain text", reported[2].Error())
	assert.Equal(t, "error: pair failed\nerror: adapter=hci0 missing\nerror: plain text\n", buf.String())
}

func TestClone(t *testing.T) {
	t.Parallel()
	l, buf := newBuffered(LInfo)
	l.SetPrefix("panel ")
	l.SetErrorFunc(func(error) { t.Error("error func must not be copied") })
	c := l.Clone(LDebug)
	c.Debugf("clone")
	c.Errorf("quiet")
	assert.Equal(t, "panel debug: clone\npanel error: quiet\n", buf.String())
}

func TestNil(t *testing.T) {
	t.Parallel()
	var l *Log
	assert.Nil(t, NewWriter(ioutil.Discard, LAll))
	assert.False(t, l.Enabled(LError))
	assert.Nil(t, l.Clone(LAll))
	assert.NotPanics(t, func() {
		l.SetLevel(LDebug)
		l.SetFlags(0)
		l.SetPrefix("x")
		l.SetErrorFunc(func(error) {})
		l.Debugf("d")
		l.Info("i")
		l.Error(fmt.Errorf("e"))
		l.Printf("p")
	})
}

func TestFatalTest(t *testing.T) {
	t.Parallel()
	var got string
	l := NewFunc(func(format string, args ...interface{}) {}, LAll)
	l.fatalf = func(format string, args ...interface{}) { got = fmt.Sprintf(format, args...) }
	l.Fatalf("config path=%s", "/etc")
	assert.Equal(t, "config path=/etc", got)
	l.Fatal("stop ", 2)
	assert.Equal(t, "stop 2", got)
}

func TestContextValueLogger(t *testing.T) {
	t.Parallel()

	assert.Nil(t, ContextValueLogger(context.Background()))
	l := NewWriter(bytes.NewBuffer(nil), LInfo)
	ctx := context.WithValue(context.Background(), ContextKey, l)
	assert.Equal(t, l, ContextValueLogger(ctx))
	bad := context.WithValue(context.Background(), ContextKey, "oops")
	assert.Panics(t, func() { ContextValueLogger(bad) })
}
