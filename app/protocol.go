package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/event"
	"github.com/go-playground/validator/v10"
)

var validate = func() (v *validator.Validate) {
	v = validator.New()
	// report the json names of failing fields, they are what the caller sent
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return
}()

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrInvalidCommand = errors.New("invalid command")
)

// Command is one request from the front end. The concrete types below are
// the variants, told apart on the wire by the "type" field.
type Command interface {
	// Type is the discriminator value of the variant.
	Type() string
}

type Init struct{}

type SubscribeOpts struct {
	// Destinations limits where results come from; ["cache"] answers from the
	// local store only.
	Destinations []string `json:"destinations,omitempty"`
	// CloseOnEose closes the subscription on a relay once it has sent all it
	// has stored.
	CloseOnEose bool `json:"closeOnEose,omitempty"`
	// Groupable is accepted for compatibility and only logged.
	Groupable bool `json:"groupable,omitempty"`
}

type Subscribe struct {
	ID      string            `json:"id" validate:"required,max=64"`
	Filters []json.RawMessage `json:"filters" validate:"required,min=1"`
	Opts    *SubscribeOpts    `json:"subscribeOpts,omitempty"`
}

type Unsubscribe struct {
	ID string `json:"id" validate:"required"`
}

type PublishOpts struct {
	// PublishTo is any of "relay", "cache" and "subscriptions", the default
	// is relay only.
	PublishTo       []string `json:"publishTo,omitempty" validate:"dive,oneof=relay cache subscriptions"`
	VerifySignature bool     `json:"verifySignature,omitempty"`
	// Source notes where the event came from, for the logs.
	Source string `json:"source,omitempty"`
}

type Publish struct {
	ID    string          `json:"id" validate:"required"`
	Event json.RawMessage `json:"event" validate:"required"`
	Opts  *PublishOpts    `json:"publishOpts,omitempty"`
}

type GetRelayStatus struct {
	ID string `json:"id" validate:"required"`
}

type AddRelay struct {
	URL string `json:"url" validate:"required"`
}

type RemoveRelay struct {
	URL string `json:"url" validate:"required"`
}

type ConnectRelay struct {
	URL string `json:"url" validate:"required"`
}

type DisconnectRelay struct {
	URL string `json:"url" validate:"required"`
}

type ReconnectDisconnected struct {
	Reason string `json:"reason,omitempty"`
}

type GetStats struct {
	ID string `json:"id" validate:"required"`
}

// Sync starts negentropy reconciliation of the first filter with the given
// relays, all of them when none are named. Events found missing are
// delivered under ID as for a subscription.
type Sync struct {
	ID      string            `json:"id" validate:"required,max=64"`
	Filters []json.RawMessage `json:"filters" validate:"required,min=1"`
	Relays  []string          `json:"relays,omitempty"`
}

type Close struct{}

func (Init) Type() string                  { return "init" }
func (Subscribe) Type() string             { return "subscribe" }
func (Unsubscribe) Type() string           { return "unsubscribe" }
func (Publish) Type() string               { return "publish" }
func (GetRelayStatus) Type() string        { return "getRelayStatus" }
func (AddRelay) Type() string              { return "addRelay" }
func (RemoveRelay) Type() string           { return "removeRelay" }
func (ConnectRelay) Type() string          { return "connectRelay" }
func (DisconnectRelay) Type() string       { return "disconnectRelay" }
func (ReconnectDisconnected) Type() string { return "reconnectDisconnected" }
func (GetStats) Type() string              { return "getStats" }
func (Sync) Type() string                  { return "sync" }
func (Close) Type() string                 { return "close" }

var commands = map[string]func() Command{
	"init":                  func() Command { return &Init{} },
	"subscribe":             func() Command { return &Subscribe{} },
	"unsubscribe":           func() Command { return &Unsubscribe{} },
	"publish":               func() Command { return &Publish{} },
	"getRelayStatus":        func() Command { return &GetRelayStatus{} },
	"addRelay":              func() Command { return &AddRelay{} },
	"removeRelay":           func() Command { return &RemoveRelay{} },
	"connectRelay":          func() Command { return &ConnectRelay{} },
	"disconnectRelay":       func() Command { return &DisconnectRelay{} },
	"reconnectDisconnected": func() Command { return &ReconnectDisconnected{} },
	"getStats":              func() Command { return &GetStats{} },
	"sync":                  func() Command { return &Sync{} },
	"close":                 func() Command { return &Close{} },
}

// ParseCommand decodes and validates one command. When the command is bad
// but carries an id, the id is returned with the error so the failure can be
// reported against it.
func ParseCommand(b []byte) (cmd Command, id string, err error) {
	var head struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	}
	if err = json.Unmarshal(b, &head); err != nil {
		return nil, "", fmt.Errorf("%w: %s", ErrInvalidCommand, err)
	}
	id = head.ID
	mk, ok := commands[head.Type]
	if !ok {
		return nil, id, fmt.Errorf("%w: '%s'", ErrUnknownCommand, head.Type)
	}
	cmd = mk()
	if err = json.Unmarshal(b, cmd); err != nil {
		return nil, id, fmt.Errorf("%w: %s: %s", ErrInvalidCommand, head.Type,
			err)
	}
	if err = validate.Struct(cmd); err != nil {
		return nil, id, fmt.Errorf("%w: %s: %s", ErrInvalidCommand, head.Type,
			err)
	}
	return
}

// Response is one message to the front end. Like commands, the variants are
// told apart by their "type" field.
type Response interface {
	ResponseType() string
}

type Header struct {
	Type string `json:"type"`
}

func (h Header) ResponseType() string { return h.Type }

type Ready struct{ Header }

type EventMsg struct {
	Header
	SubID string   `json:"subId"`
	Event *event.T `json:"event"`
	// Relay is empty for events that came from the local store.
	Relay string `json:"relay,omitempty"`
}

type Eose struct {
	Header
	SubID string `json:"subId"`
}

type Published struct {
	Header
	ID string `json:"id"`
}

type ErrorMsg struct {
	Header
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

type RelayStatusInfo struct {
	URL    string `json:"url"`
	Status int    `json:"status"`
}

type RelayStatus struct {
	Header
	ID            string            `json:"id"`
	RelayStatuses []RelayStatusInfo `json:"relayStatuses"`
}

type StatsMsg struct {
	Header
	ID    string        `json:"id"`
	Stats StatsSnapshot `json:"stats"`
}

type RelayAdded struct {
	Header
	URL string `json:"url"`
}

type RelayConnected struct {
	Header
	Relay string `json:"relay"`
}

type RelayDisconnected struct {
	Header
	Relay string `json:"relay"`
}

func NewReady() *Ready { return &Ready{Header{"ready"}} }

func NewEvent(subID string, ev *event.T, relay string) *EventMsg {
	return &EventMsg{Header{"event"}, subID, ev, relay}
}

func NewEose(subID string) *Eose { return &Eose{Header{"eose"}, subID} }

func NewPublished(id string) *Published { return &Published{Header{"published"}, id} }

func NewError(id string, err error) *ErrorMsg {
	return &ErrorMsg{Header{"error"}, id, err.Error()}
}

func NewRelayStatus(id string, st []RelayStatusInfo) *RelayStatus {
	if st == nil {
		st = []RelayStatusInfo{}
	}
	return &RelayStatus{Header{"relayStatus"}, id, st}
}

func NewStatsMsg(id string, s StatsSnapshot) *StatsMsg {
	return &StatsMsg{Header{"stats"}, id, s}
}

func NewRelayAdded(url string) *RelayAdded {
	return &RelayAdded{Header{"relayAdded"}, url}
}

func NewRelayConnected(url string) *RelayConnected {
	return &RelayConnected{Header{"relayConnected"}, url}
}

func NewRelayDisconnected(url string) *RelayDisconnected {
	return &RelayDisconnected{Header{"relayDisconnected"}, url}
}
