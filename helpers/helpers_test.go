package helpers

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/alive/v2"
)

func TestFoldErrors(t *testing.T) {
	t.Parallel()

	single := fmt.Errorf("single")
	cases := []struct {
		name   string
		input  []error
		expect string
	}{
		{"nil", nil, ""},
		{"all-nil", []error{nil, nil}, ""},
		{"one", []error{nil, single}, "single"},
		{"two", []error{fmt.Errorf("a"), nil, fmt.Errorf("b")}, "a\nb"},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			err := FoldErrors(c.input)
			if c.expect == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, c.expect, err.Error())
		})
	}
	assert.Equal(t, single, FoldErrors([]error{nil, single}))
}

func TestFoldErrChan(t *testing.T) {
	t.Parallel()

	const n = 3
	wg := sync.WaitGroup{}
	wg.Add(n)
	errch := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		go WrapErrChan(&wg, errch, func() error {
			if i == 1 {
				return fmt.Errorf("task%d", i)
			}
			return nil
		})
	}
	wg.Wait()
	close(errch)
	err := FoldErrChan(errch)
	require.Error(t, err)
	assert.Equal(t, "task1", err.Error())
}

func TestDurationDefault(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 7*time.Second, IntSecondDefault(0, 7*time.Second))
	assert.Equal(t, 7*time.Second, IntSecondDefault(-1, 7*time.Second))
	assert.Equal(t, 3*time.Second, IntSecondDefault(3, 7*time.Second))
	assert.Equal(t, 5*time.Millisecond, IntMillisecondDefault(0, 5*time.Millisecond))
	assert.Equal(t, 20*time.Millisecond, IntMillisecondDefault(20, 5*time.Millisecond))
}

func TestAliveSub(t *testing.T) {
	t.Parallel()

	root, leaf := alive.NewAlive(), alive.NewAlive()
	done := make(chan struct{})
	go func() {
		AliveSub(root, leaf)
		close(done)
	}()
	root.Stop()
	select {
	case <-leaf.StopChan():
	case <-time.After(time.Second):
		t.Fatal("leaf not stopped")
	}
	<-done
}

func TestBackoff(t *testing.T) {
	t.Parallel()

	b := Backoff{Min: 10 * time.Millisecond, Max: 50 * time.Millisecond, K: 2}
	assert.Equal(t, time.Duration(0), b.Delay())
	assert.Equal(t, 10*time.Millisecond, b.Failure())
	assert.Equal(t, 20*time.Millisecond, b.Failure())
	assert.Equal(t, 40*time.Millisecond, b.Failure())
	assert.Equal(t, 50*time.Millisecond, b.Failure())
	assert.Equal(t, 50*time.Millisecond, b.Failure())
	d := b.Delay()
	assert.True(t, d > 0 && d <= 50*time.Millisecond, "delay=%v", d)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, time.Duration(0), b.Delay())
	b.Reset()
	assert.Equal(t, 10*time.Millisecond, b.Failure())
}
