package relay

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/envelopes"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/negentropy"
)

var ErrNoSession = errors.New("no reconciliation session")

type session struct {
	sync.Mutex
	subID  string
	filter *filter.T
	neg    *negentropy.Session
}

func (r *Relay) emit(rc Reconcile) {
	select {
	case r.reconciles <- rc:
	case <-r.ctx.Done():
	}
}

// Reconcile starts a negentropy session for f under subID. The owner is first
// asked for the local events matching f with a NeedLocalEvents callback, and
// the exchange with the relay starts when it answers with SupplyLocalEvents.
func (r *Relay) Reconcile(subID string, f *filter.T) (err error) {
	if r.conn.Load() == nil {
		return fmt.Errorf("%w: %s", ErrNotConnected, r.url)
	}
	if old, ok := r.sessions.LoadAndDelete(subID); ok && old.neg != nil {
		chk.D(r.Send(envelopes.NegClose(subID)))
	}
	r.sessions.Store(subID, &session{subID: subID, filter: f})
	// the owner is the one draining the queue, so this must not block
	select {
	case r.reconciles <- Reconcile{Kind: NeedLocalEvents, SubID: subID, Filter: f}:
	default:
		r.sessions.Delete(subID)
		err = fmt.Errorf("%w: %s", ErrQueueFull, r.url)
	}
	return
}

// SupplyLocalEvents answers a NeedLocalEvents callback and sends the opening
// message of the session.
func (r *Relay) SupplyLocalEvents(subID string, evs []*event.T) (err error) {
	s, ok := r.sessions.Load(subID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSession, subID)
	}
	v := &negentropy.Vector{}
	for _, ev := range evs {
		v.Insert(ev.CreatedAt.U64(), ev.ID)
	}
	s.Lock()
	s.neg = negentropy.New(v)
	msg := s.neg.Initiate()
	s.Unlock()
	log.D.F("{%s} opening negentropy session %s with %d local events",
		r.url, subID, v.Len())
	if err = r.Send(envelopes.NegOpen(subID, s.filter,
		hex.EncodeToString(msg))); err != nil {
		r.sessions.Delete(subID)
	}
	return
}

// CloseReconcile abandons a session.
func (r *Relay) CloseReconcile(subID string) {
	if _, ok := r.sessions.LoadAndDelete(subID); ok {
		chk.D(r.Send(envelopes.NegClose(subID)))
	}
}

func (r *Relay) finish(s *session, rc Reconcile) {
	r.sessions.Delete(s.subID)
	r.emit(rc)
}

// onNegentropy runs on the reader goroutine.
func (r *Relay) onNegentropy(fr *envelopes.Frame) {
	subID := fr.SubID()
	s, ok := r.sessions.Load(subID)
	if !ok {
		log.D.F("{%s} %s for unknown session %s", r.url, fr.Name, subID)
		return
	}
	switch fr.Label {
	case envelopes.LNegErr:
		r.finish(s, Reconcile{Kind: Failed, SubID: subID,
			Err: fmt.Errorf("relay refused reconciliation: %s", fr.Message())})
	case envelopes.LNegMsg:
		msg, err := hex.DecodeString(fr.Message())
		if err != nil {
			r.finish(s, Reconcile{Kind: Failed, SubID: subID, Err: err})
			return
		}
		s.Lock()
		if s.neg == nil {
			s.Unlock()
			log.D.F("{%s} NEG-MSG before NEG-OPEN for %s", r.url, subID)
			return
		}
		next, have, need, err := s.neg.Reconcile(msg)
		s.Unlock()
		if err != nil {
			chk.D(r.Send(envelopes.NegClose(subID)))
			r.finish(s, Reconcile{Kind: Failed, SubID: subID, Err: err})
			return
		}
		if len(have) > 0 {
			r.emit(Reconcile{Kind: HaveLocalOnly, SubID: subID, IDs: have})
		}
		if len(need) > 0 {
			r.emit(Reconcile{Kind: NeedRemoteEvents, SubID: subID, IDs: need})
		}
		if next == nil {
			chk.D(r.Send(envelopes.NegClose(subID)))
			r.finish(s, Reconcile{Kind: Complete, SubID: subID})
			return
		}
		if err = r.Send(envelopes.NegMsg(subID, hex.EncodeToString(next))); err != nil {
			r.finish(s, Reconcile{Kind: Failed, SubID: subID, Err: err})
		}
	default:
		log.D.F("{%s} unexpected %s from relay", r.url, fr.Name)
	}
}

// failSessions ends every open session when the connection drops.
func (r *Relay) failSessions(cause error) {
	r.sessions.Range(func(subID string, s *session) bool {
		r.finish(s, Reconcile{Kind: Failed, SubID: subID,
			Err: fmt.Errorf("connection lost: %w", cause)})
		return true
	})
}
