package objbus

import (
	"context"
	"sync"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/robot-util/log2"
)

const loopTaskBuffer = 32

type HandlerFunc func(ctx context.Context, s Signal)

// Loop is reference counted background worker dispatching bus signals and
// posted tasks in order on a single goroutine.
// First Acquire subscribes and starts worker, last Release stops and joins it.
// Acquire during that join waits for the old worker to exit.
// Handlers and tasks run on worker; they must not call Acquire or Release.
type Loop struct {
	conn Conn
	log  *log2.Log

	mu       sync.Mutex
	refs     int
	alive    *alive.Alive
	joining  *alive.Alive // worker being stopped by last Release
	cancel   context.CancelFunc
	tasks    chan func(context.Context)
	handlers []handler
	nextID   int
}

type handler struct {
	id int
	f  HandlerFunc
}

func NewLoop(conn Conn, log *log2.Log) *Loop {
	return &Loop{conn: conn, log: log}
}

// Handle registers f for all signals. Safe to call while running.
// Returned func unregisters f.
func (self *Loop) Handle(f HandlerFunc) (remove func()) {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.nextID++
	id := self.nextID
	self.handlers = append(self.handlers, handler{id: id, f: f})
	return func() {
		self.mu.Lock()
		defer self.mu.Unlock()
		hs := make([]handler, 0, len(self.handlers))
		for _, h := range self.handlers {
			if h.id != id {
				hs = append(hs, h)
			}
		}
		self.handlers = hs
	}
}

func (self *Loop) Refs() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.refs
}

func (self *Loop) Running() bool { return self.Refs() > 0 }

func (self *Loop) Acquire() error {
	self.mu.Lock()
	defer self.mu.Unlock()
	for self.joining != nil {
		a := self.joining
		self.mu.Unlock()
		a.Wait()
		self.mu.Lock()
	}
	if self.refs == 0 {
		ctx, cancel := context.WithCancel(context.Background())
		signals, err := self.conn.Subscribe(ctx)
		if err != nil {
			cancel()
			return errors.Annotate(err, "objbus loop subscribe")
		}
		a := alive.NewAlive()
		a.Add(1)
		tasks := make(chan func(context.Context), loopTaskBuffer)
		self.alive, self.cancel, self.tasks = a, cancel, tasks
		self.log.Debugf("objbus loop start")
		go self.run(ctx, a, signals, tasks)
	}
	self.refs++
	return nil
}

// Release panics without matching Acquire.
func (self *Loop) Release() {
	self.mu.Lock()
	if self.refs <= 0 {
		self.mu.Unlock()
		panic("code error objbus.Loop.Release() refs=0")
	}
	self.refs--
	if self.refs > 0 {
		self.mu.Unlock()
		return
	}
	a, cancel := self.alive, self.cancel
	self.alive, self.cancel, self.tasks = nil, nil, nil
	self.joining = a
	self.mu.Unlock()

	a.Stop()
	cancel()
	a.Wait()
	self.mu.Lock()
	if self.joining == a {
		self.joining = nil
	}
	self.mu.Unlock()
	self.log.Debugf("objbus loop stopped")
}

// Post schedules f on worker after all signals already received.
// Returns false when loop is not running.
func (self *Loop) Post(f func(context.Context)) bool {
	_, ok := self.post(f)
	return ok
}

// Sync waits until worker processed everything received before the call.
func (self *Loop) Sync(ctx context.Context) error {
	done := make(chan struct{})
	a, ok := self.post(func(context.Context) { close(done) })
	if !ok {
		return errors.Errorf("objbus loop is not running")
	}
	select {
	case <-done:
		return nil
	case <-a.StopChan():
		return errors.Errorf("objbus loop stopped")
	case <-ctx.Done():
		return errors.Trace(ctx.Err())
	}
}

func (self *Loop) post(f func(context.Context)) (*alive.Alive, bool) {
	self.mu.Lock()
	a, tasks := self.alive, self.tasks
	self.mu.Unlock()
	if a == nil {
		return nil, false
	}
	select {
	case tasks <- f:
		return a, true
	case <-a.StopChan():
		return a, false
	}
}

func (self *Loop) run(ctx context.Context, a *alive.Alive, signals <-chan Signal, tasks <-chan func(context.Context)) {
	defer a.Done()
	stopch := a.StopChan()
	for {
		select {
		case <-stopch:
			return

		case s, ok := <-signals:
			if !ok {
				self.log.Debugf("objbus loop signal stream closed")
				signals = nil
				continue
			}
			self.dispatch(ctx, s)

		case f := <-tasks:
			signals = self.drain(ctx, signals)
			f(ctx)
		}
	}
}

// drain dispatches signals already buffered, so tasks observe them in order.
func (self *Loop) drain(ctx context.Context, signals <-chan Signal) <-chan Signal {
	for {
		select {
		case s, ok := <-signals:
			if !ok {
				return nil
			}
			self.dispatch(ctx, s)
		default:
			return signals
		}
	}
}

func (self *Loop) dispatch(ctx context.Context, s Signal) {
	self.mu.Lock()
	hs := self.handlers
	self.mu.Unlock()
	for _, h := range hs {
		h.f(ctx, s)
	}
}
