// Package interrupt runs registered handlers, last added first, when the
// process is told to stop by a signal or by Request.
package interrupt

import (
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/Hubmakerlabs/bridgr/pkg/slog"
)

var log, _ = slog.New(os.Stderr)

type HandlerWithSource struct {
	Source string
	Fn     func()
}

var (
	requested atomic.Bool

	// signals is the list of signals that cause the interrupt
	signals = []os.Signal{os.Interrupt, syscall.SIGTERM}

	// shutdownRequestChan receives programmatic shutdown requests.
	shutdownRequestChan = make(chan struct{})
	shutdownOnce        sync.Once

	// addHandlerChan is used to add an interrupt handler to the list of
	// handlers to be invoked on SIGINT (Ctrl+C) signals.
	addHandlerChan = make(chan HandlerWithSource)

	// HandlersDone is closed after all interrupt handlers run the first time
	// an interrupt is signaled.
	HandlersDone = make(chan struct{})

	startOnce sync.Once
)

// Listener listens for interrupt signals, registers interrupt callbacks,
// and responds to custom shutdown signals as required
func Listener(ch <-chan os.Signal) {
	var handlers []HandlerWithSource
	invokeCallbacks := func() {
		log.D.Ln("running interrupt callbacks", len(handlers))
		// run handlers in LIFO order.
		for i := len(handlers) - 1; i >= 0; i-- {
			log.D.Ln("running callback", i, handlers[i].Source)
			handlers[i].Fn()
		}
		log.D.Ln("interrupt handlers finished")
		close(HandlersDone)
	}
	for {
		select {
		case sig := <-ch:
			log.D.Ln("received interrupt signal", sig)
			requested.Store(true)
			invokeCallbacks()
			return
		case <-shutdownRequestChan:
			log.W.Ln("received shutdown request - shutting down...")
			invokeCallbacks()
			return
		case handler := <-addHandlerChan:
			handlers = append(handlers, handler)
		}
	}
}

// AddHandler adds a handler to call when a SIGINT (Ctrl+C) is received.
func AddHandler(handler func()) {
	// Create the channel and start the main interrupt handler which invokes all
	// other callbacks and exits if not already done.
	_, loc, line, _ := runtime.Caller(1)
	msg := fmt.Sprintf("%s:%d", loc, line)
	log.D.Ln("handler added by:", msg)
	startOnce.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, signals...)
		go Listener(ch)
	})
	select {
	case addHandlerChan <- HandlerWithSource{msg, handler}:
	case <-HandlersDone:
		// too late, run it now
		handler()
	}
}

// Request programmatically requests a shutdown
func Request() {
	_, f, l, _ := runtime.Caller(1)
	log.D.Ln("interrupt requested", f, l, requested.Load())
	if requested.Swap(true) {
		log.D.Ln("requested again")
		return
	}
	shutdownOnce.Do(func() { close(shutdownRequestChan) })
}

// GoroutineDump returns a string with the current goroutine dump in order to
// show what's going on in case of timeout.
func GoroutineDump() string {
	buf := make([]byte, 1<<18)
	n := runtime.Stack(buf, true)
	return string(buf[:n])
}

// Requested returns true if an interrupt has been requested
func Requested() bool {
	return requested.Load()
}
