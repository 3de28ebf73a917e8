// Package runloop serializes commands onto a single worker goroutine.
//
// Commands are queued without bound, so Cast and CallAsync never block on the
// worker. Call blocks until the command ran and must not be used from inside
// a command.
package runloop

import (
	"errors"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"
)

// ErrClosed is returned for commands pushed after Stop.
var ErrClosed = errors.New("runloop: is closed")

type RunLoop struct {
	State   interface{}
	Metrics metrics.Registry

	wg              sync.WaitGroup
	shutdown        chan bool
	enqueueCommands chan *privateCommand
	runCommands     chan *privateCommand

	metQueueDepth metrics.Counter
}

type privateCommand struct {
	command Command
	reply   chan error
	created time.Time
}

type Command interface {
	Exec(state interface{}) error
}

// CommandFunc adapts a function to the Command interface.
type CommandFunc func(state interface{}) error

func (f CommandFunc) Exec(state interface{}) error { return f(state) }

func (c *privateCommand) cancel(err error) {
	defer func() { recover() }()
	if c.reply != nil {
		c.reply <- err
		close(c.reply)
	}
}

func (l *RunLoop) Run() {
	if l.Metrics == nil {
		l.Metrics = metrics.NewRegistry()
	}

	l.enqueueCommands = make(chan *privateCommand)
	l.runCommands = make(chan *privateCommand)
	l.shutdown = make(chan bool)
	l.metQueueDepth = metrics.GetOrRegisterCounter("runloop.queue.depth", l.Metrics)

	l.wg.Add(1)
	go l.runController()

	l.wg.Add(1)
	go l.runWorker()
}

func (l *RunLoop) runController() {
	defer l.wg.Done()

	var (
		backlog     []*privateCommand
		runCommands chan *privateCommand
		nextCmd     *privateCommand
	)

	for {
		if len(backlog) > 0 {
			runCommands = l.runCommands
			nextCmd = backlog[0]
		} else {
			runCommands = nil
			nextCmd = nil
		}

		select {

		case <-l.shutdown:
			close(l.enqueueCommands)
			close(l.runCommands)
			close(l.shutdown)

			for _, cmd := range backlog {
				cmd.cancel(ErrClosed)
			}

			return

		case cmd := <-l.enqueueCommands:
			backlog = append(backlog, cmd)

		case runCommands <- nextCmd:
			copy(backlog, backlog[1:])
			backlog[len(backlog)-1] = nil
			backlog = backlog[:len(backlog)-1]

		}
	}
}

func (l *RunLoop) runWorker() {
	defer l.wg.Done()

	var (
		execTimer    = metrics.GetOrRegisterTimer("runloop.exec.duration", l.Metrics)
		latencyTimer = metrics.GetOrRegisterTimer("runloop.exec.latency", l.Metrics)
	)

	for cmd := range l.runCommands {
		execTimer.Time(func() {
			l.exec(cmd)
		})

		l.metQueueDepth.Dec(1)
		latencyTimer.UpdateSince(cmd.created)
	}
}

func (l *RunLoop) Stop() (err error) {
	defer func(errPtr *error) {
		if r := recover(); r != nil {
			*errPtr = ErrClosed
		}
	}(&err)

	l.shutdown <- true
	return
}

func (l *RunLoop) Wait() {
	l.wg.Wait()
}

func (l *RunLoop) StopAndWait() {
	l.Stop()
	l.Wait()
}

func (l *RunLoop) exec(c *privateCommand) {
	var err error

	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
		if c.reply != nil {
			c.cancel(err)
		}
	}()

	err = c.command.Exec(l.State)
}

func (l *RunLoop) Call(e Command) error {
	return <-l.CallAsync(e)
}

func (l *RunLoop) CallAsync(e Command) <-chan error {
	c := privateCommand{e, make(chan error, 1), time.Now()}

	l.metQueueDepth.Inc(1)
	err := l.push(&c)
	if err != nil {
		l.metQueueDepth.Dec(1)
		c.cancel(err)
	}

	return c.reply
}

func (l *RunLoop) Cast(e Command) {
	l.metQueueDepth.Inc(1)
	err := l.push(&privateCommand{e, nil, time.Now()})
	if err != nil {
		l.metQueueDepth.Dec(1)
	}
}

func (l *RunLoop) push(c *privateCommand) (err error) {
	defer func(errPtr *error) {
		if r := recover(); r != nil {
			*errPtr = ErrClosed
		}
	}(&err)

	l.enqueueCommands <- c
	return
}

func (l *RunLoop) CastAfter(d time.Duration, e Command) *time.Timer {
	return time.AfterFunc(d, func() { l.Cast(e) })
}

type panicError struct {
	v interface{}
}

func (p panicError) Error() string {
	if err, ok := p.v.(error); ok {
		return "runloop: command panicked: " + err.Error()
	}
	if s, ok := p.v.(string); ok {
		return "runloop: command panicked: " + s
	}
	return "runloop: command panicked"
}
