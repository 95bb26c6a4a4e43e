package relay

import (
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/filter"
)

// InboundKind tells what an Inbound carries.
type InboundKind byte

const (
	// Text is a frame received from the relay.
	Text InboundKind = iota
	// Opened is sent once a connection is up.
	Opened
	// Closed is sent when an open connection goes down.
	Closed
	// Error reports a failed dial or other transport failure.
	Error
)

func (k InboundKind) String() string {
	switch k {
	case Text:
		return "text"
	case Opened:
		return "opened"
	case Closed:
		return "closed"
	}
	return "error"
}

// Inbound is one item of the queue polled with Relay.TryRecv.
type Inbound struct {
	Kind InboundKind
	Text []byte
	Err  error
}

// ReconcileKind tells what a Reconcile callback asks for or reports.
type ReconcileKind byte

const (
	// NeedLocalEvents asks the owner for the local events matching Filter,
	// see Relay.SupplyLocalEvents.
	NeedLocalEvents ReconcileKind = iota
	// NeedRemoteEvents lists ids the relay has and we lack.
	NeedRemoteEvents
	// HaveLocalOnly lists ids we have and the relay lacks.
	HaveLocalOnly
	// Complete ends a session successfully.
	Complete
	// Failed ends a session with Err.
	Failed
)

func (k ReconcileKind) String() string {
	switch k {
	case NeedLocalEvents:
		return "need-local"
	case NeedRemoteEvents:
		return "need-remote"
	case HaveLocalOnly:
		return "have-local-only"
	case Complete:
		return "complete"
	}
	return "failed"
}

// Reconcile is one item of the queue polled with Relay.TryRecvReconcile.
type Reconcile struct {
	Kind   ReconcileKind
	SubID  string
	Filter *filter.T
	IDs    []eventid.T
	Err    error
}
