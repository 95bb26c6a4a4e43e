// Package relay is the connection to one nostr relay: it keeps a websocket
// up, queues what arrives for a single owner to poll, and runs the client
// side of NIP-77 negentropy sessions.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync/atomic"
	"time"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/connect"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/normalize"
	"github.com/Hubmakerlabs/bridgr/pkg/slog"
	"github.com/puzpuzpuz/xsync/v2"
	"golang.org/x/time/rate"
)

var log, chk = slog.New(os.Stderr)

var (
	ErrNotConnected = errors.New("relay is not connected")
	ErrQueueFull    = errors.New("relay write queue is full")
	ErrInvalidURL   = errors.New("invalid relay URL")
)

// Options tune a Relay; the zero value of each field picks the default.
type Options struct {
	RequestHeader http.Header // e.g. for origin header
	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration
	// PingInterval is how often a ping is written on an idle connection.
	PingInterval time.Duration
	// RedialInterval is the least time between two connection attempts.
	RedialInterval time.Duration
	// QueueSize is the capacity of the inbound and outbound queues.
	QueueSize int
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = 7 * time.Second
	}
	if o.PingInterval <= 0 {
		o.PingInterval = 29 * time.Second
	}
	if o.RedialInterval <= 0 {
		o.RedialInterval = 15 * time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 4096
	}
	return o
}

type Relay struct {
	url  string
	opts Options
	// status is only written by the owner.
	status atomic.Int32
	// conn is the live connection, or nil.
	conn       atomic.Pointer[connect.C]
	inbound    chan Inbound
	reconciles chan Reconcile
	writeQueue chan []byte
	wake       chan struct{}
	limiter    *rate.Limiter
	sessions   *xsync.MapOf[string, *session]
	ctx        context.Context // will be canceled by Close
	cancel     context.CancelFunc
}

// New returns a relay for url and starts connecting to it in the background.
func New(ctx context.Context, url string, opts Options) (r *Relay, err error) {
	u := normalize.URL(url)
	if u == "" {
		return nil, fmt.Errorf("%w: '%s'", ErrInvalidURL, url)
	}
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(ctx)
	r = &Relay{
		url:        u,
		opts:       opts,
		inbound:    make(chan Inbound, opts.QueueSize),
		reconciles: make(chan Reconcile, opts.QueueSize),
		writeQueue: make(chan []byte, opts.QueueSize),
		wake:       make(chan struct{}, 1),
		limiter:    rate.NewLimiter(rate.Every(opts.RedialInterval), 1),
		sessions:   xsync.NewMapOf[*session](),
		ctx:        ctx,
		cancel:     cancel,
	}
	r.status.Store(int32(Connecting))
	go r.dialLoop()
	return
}

// URL returns the normalized relay URL.
func (r *Relay) URL() string { return r.url }

func (r *Relay) String() string { return r.url }

func (r *Relay) Status() Status { return Status(r.status.Load()) }

// SetStatus records the status the owner has decided on; the transport never
// calls it itself.
func (r *Relay) SetStatus(s Status) { r.status.Store(int32(s)) }

// IsConnected returns true if a websocket is currently up.
func (r *Relay) IsConnected() bool { return r.conn.Load() != nil }

// Wake cuts short the wait before the next connection attempt.
func (r *Relay) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Send queues a frame for writing. It fails at once when there is no live
// connection rather than holding the frame for a later one.
func (r *Relay) Send(msg []byte) (err error) {
	if r.conn.Load() == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, r.url)
	}
	select {
	case r.writeQueue <- msg:
		return
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, r.url)
	}
}

// TryRecv returns the next queued frame or connection event, if any.
func (r *Relay) TryRecv() (in Inbound, ok bool) {
	select {
	case in = <-r.inbound:
		return in, true
	default:
		return
	}
}

// TryRecvReconcile returns the next negentropy callback, if any.
func (r *Relay) TryRecvReconcile() (rc Reconcile, ok bool) {
	select {
	case rc = <-r.reconciles:
		return rc, true
	default:
		return
	}
}

// Close disconnects and stops all goroutines of the relay.
func (r *Relay) Close() (err error) {
	r.cancel()
	if c := r.conn.Load(); c != nil {
		err = c.Close()
	}
	return
}

func (r *Relay) push(in Inbound) {
	select {
	case r.inbound <- in:
	case <-r.ctx.Done():
	}
}

func (r *Relay) dialLoop() {
	for {
		if err := r.limiter.Wait(r.ctx); err != nil {
			return
		}
		ctx, cancel := context.WithTimeout(r.ctx, r.opts.DialTimeout)
		c, err := connect.New(ctx, r.url, r.opts.RequestHeader)
		cancel()
		if r.ctx.Err() != nil {
			if c != nil {
				chk.D(c.Close())
			}
			return
		}
		if err != nil {
			log.D.F("{%s} %v", r.url, err)
			r.push(Inbound{Kind: Error,
				Err: fmt.Errorf("error opening websocket to '%s': %w", r.url, err)})
		} else {
			r.serve(c)
		}
		// wait for a nudge, or for the redial interval to come around
		select {
		case <-r.ctx.Done():
			return
		case <-r.wake:
		case <-time.After(r.opts.RedialInterval):
		}
	}
}

// serve runs one connection until it fails or the relay is closed.
func (r *Relay) serve(c *connect.C) {
	log.D.F("{%s} connected, compression %v", r.url, c.Compressed())
	r.conn.Store(c)
	r.push(Inbound{Kind: Opened})
	done := make(chan struct{})
	go r.writeLoop(c, done)
	buf := new(bytes.Buffer)
	var err error
	for {
		buf.Reset()
		if err = c.ReadMessage(r.ctx, buf); err != nil {
			break
		}
		msg := make([]byte, buf.Len())
		copy(msg, buf.Bytes())
		log.T.F("{%s} %s", r.url, msg)
		if r.handleNegentropy(msg) {
			continue
		}
		r.push(Inbound{Kind: Text, Text: msg})
	}
	close(done)
	r.conn.Store(nil)
	chk.D(c.Close())
	r.failSessions(err)
	if r.ctx.Err() == nil {
		r.push(Inbound{Kind: Closed, Err: err})
	}
}

func (r *Relay) writeLoop(c *connect.C, done chan struct{}) {
	// ping every 29 seconds
	ticker := time.NewTicker(r.opts.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				log.E.F("{%s} error writing ping: %v; closing websocket", r.url, err)
				// this makes the reader fail
				chk.D(c.Close())
				return
			}
		case msg := <-r.writeQueue:
			if err := c.WriteMessage(msg); err != nil {
				log.E.F("{%s} write failed: %v; closing websocket", r.url, err)
				chk.D(c.Close())
				return
			}
		case <-done:
			return
		case <-r.ctx.Done():
			return
		}
	}
}

// isNegentropy checks the label of a frame without parsing the whole of it.
func isNegentropy(msg []byte) bool {
	i := bytes.IndexByte(msg, '"')
	return i >= 0 && bytes.HasPrefix(msg[i+1:], []byte("NEG-"))
}

// handleNegentropy consumes NEG-* frames, returning false for anything else.
func (r *Relay) handleNegentropy(msg []byte) bool {
	if !isNegentropy(msg) {
		return false
	}
	fr, err := envelopes.Parse(msg)
	if err != nil {
		log.D.F("{%s} %v", r.url, err)
		return true
	}
	r.onNegentropy(fr)
	return true
}
