package event

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/Hubmakerlabs/bridgr/pkg/nostr/eventid"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/kind"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/tags"
	"github.com/Hubmakerlabs/bridgr/pkg/nostr/timestamp"
	"github.com/Hubmakerlabs/bridgr/pkg/slog"
	"github.com/Hubmakerlabs/bridgr/pkg/wire/text"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/mailru/easyjson/jwriter"
	"github.com/minio/sha256-simd"
)

var log, chk = slog.New(os.Stderr)

var (
	ErrIDMismatch = errors.New("event id does not match its content")
	ErrBadSig     = errors.New("event signature is invalid")
)

func Hash(in []byte) (out []byte) {
	h := sha256.Sum256(in)
	return h[:]
}

// T is the primary datatype of nostr. This is the form of the structure
// that defines its JSON string based format.
type T struct {

	// ID is the SHA256 hash of the canonical encoding of the event
	ID eventid.T `json:"id"`

	// PubKey is the public key of the event creator in *hexadecimal* format
	PubKey string `json:"pubkey"`

	// CreatedAt is the UNIX timestamp of the event according to the event
	// creator (never trust a timestamp!)
	CreatedAt timestamp.T `json:"created_at"`

	// Kind is the nostr protocol code for the type of event. See kind.T
	Kind kind.T `json:"kind"`

	// Tags are a list of tags, which are a list of strings usually structured
	// as a 3 layer scheme indicating specific features of an event.
	Tags tags.T `json:"tags"`

	// Content is an arbitrary string that can contain anything, but usually
	// laid out the way the Kind and the Tags say.
	Content string `json:"content"`

	// Sig is the signature on the ID hash that validates as coming from the
	// Pubkey.
	Sig string `json:"sig"`
}

// Descending sorts a slice of events in reverse chronological order (newest
// first)
type Descending []*T

func (e Descending) Len() int           { return len(e) }
func (e Descending) Less(i, j int) bool { return e[i].CreatedAt > e[j].CreatedAt }
func (e Descending) Swap(i, j int)      { e[i], e[j] = e[j], e[i] }

// Serialize renders the event as JSON with the fields in the conventional
// order and no insignificant whitespace.
func (ev *T) Serialize() []byte {
	w := &jwriter.Writer{}
	w.RawString(`{"id":`)
	w.Raw(ev.ID.MarshalJSON())
	w.RawString(`,"pubkey":`)
	w.Raw(text.EscapeJSONStringAndWrap(ev.PubKey), nil)
	w.RawString(`,"created_at":`)
	w.Int64(ev.CreatedAt.I64())
	w.RawString(`,"kind":`)
	w.Uint16(ev.Kind.ToUint16())
	w.RawString(`,"tags":`)
	ev.Tags.MarshalTo(w)
	w.RawString(`,"content":`)
	w.Raw(text.EscapeJSONStringAndWrap(ev.Content), nil)
	w.RawString(`,"sig":`)
	w.Raw(text.EscapeJSONStringAndWrap(ev.Sig), nil)
	w.RawByte('}')
	b, _ := w.BuildBytes()
	return b
}

func (ev *T) MarshalJSON() (bytes []byte, err error) { return ev.Serialize(), nil }

func (ev *T) String() string { return string(ev.Serialize()) }

// ToCanonical returns the form of the event that is hashed to produce the ID:
//
//	[0,<pubkey>,<created_at>,<kind>,<tags>,<content>]
func (ev *T) ToCanonical() []byte {
	w := &jwriter.Writer{}
	w.RawString(`[0,`)
	w.Raw(text.EscapeJSONStringAndWrap(ev.PubKey), nil)
	w.RawByte(',')
	w.Int64(ev.CreatedAt.I64())
	w.RawByte(',')
	w.Uint16(ev.Kind.ToUint16())
	w.RawByte(',')
	ev.Tags.MarshalTo(w)
	w.RawByte(',')
	w.Raw(text.EscapeJSONStringAndWrap(ev.Content), nil)
	w.RawByte(']')
	b, _ := w.BuildBytes()
	return b
}

// GetID computes the event ID from the canonical form.
func (ev *T) GetID() (ei eventid.T) {
	copy(ei[:], Hash(ev.ToCanonical()))
	return
}

// CheckID returns true if the ID field matches the content of the event.
func (ev *T) CheckID() bool { return ev.GetID() == ev.ID }

// CheckSignature checks if the signature is valid for the id (which is a hash
// of the serialized event content). returns an error if the signature itself is
// invalid.
func (ev *T) CheckSignature() (valid bool, err error) {

	// decode pubkey hex to bytes.
	var pkBytes []byte
	if pkBytes, err = hex.DecodeString(ev.PubKey); chk.D(err) {
		err = log.E.Err("event pubkey '%s' is invalid hex: %w", ev.PubKey, err)
		return
	}

	// parse pubkey bytes.
	var pk *btcec.PublicKey
	if pk, err = schnorr.ParsePubKey(pkBytes); chk.D(err) {
		err = log.E.Err("event has invalid pubkey '%s': %w", ev.PubKey, err)
		return
	}

	// decode signature hex to bytes.
	var sigBytes []byte
	if sigBytes, err = hex.DecodeString(ev.Sig); chk.D(err) {
		err = log.E.Err("signature '%s' is invalid hex: %w", ev.Sig, err)
		return
	}

	// parse signature bytes.
	var sig *schnorr.Signature
	if sig, err = schnorr.ParseSignature(sigBytes); chk.D(err) {
		err = log.E.Err("failed to parse signature: %w", err)
		return
	}

	// check signature.
	valid = sig.Verify(ev.ID[:], pk)
	return
}

// Verify checks both the ID and the signature, returning an error wrapping
// ErrIDMismatch or ErrBadSig.
func (ev *T) Verify() (err error) {
	if !ev.CheckID() {
		return fmt.Errorf("%w: %s", ErrIDMismatch, ev.ID)
	}
	var valid bool
	if valid, err = ev.CheckSignature(); err != nil {
		return fmt.Errorf("%w: %w", ErrBadSig, err)
	}
	if !valid {
		return fmt.Errorf("%w: %s", ErrBadSig, ev.ID)
	}
	return
}

// SignWithSecKey signs an event with a given *btcec.PrivateKey, setting the
// PubKey, ID and Sig fields.
func (ev *T) SignWithSecKey(sk *btcec.PrivateKey) (err error) {
	ev.PubKey = hex.EncodeToString(schnorr.SerializePubKey(sk.PubKey()))
	ev.ID = ev.GetID()
	var sig *schnorr.Signature
	if sig, err = schnorr.Sign(sk, ev.ID[:]); chk.D(err) {
		return
	}
	ev.Sig = hex.EncodeToString(sig.Serialize())
	log.T.Ln("signed", ev.ID)
	return
}
