// Package wire implements the CBOR encoding of the tagged Message union and
// the MessageRelay<Message> envelope that travels over a data channel, on
// top of github.com/fxamacker/cbor/v2 — the codec already present in this
// corpus for exactly this "small tagged union over a byte-oriented
// transport" shape.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/chordmesh/ringsnode/internal/identity"
)

// Did fields round-trip through CBOR as a plain 20-element array rather
// than a byte string — fxamacker/cbor has no hook for a fixed-size array
// type to opt into bstr encoding short of wrapping every field, which would
// make every variant below noisier for no behavioral difference. Canonical
// byte equality (what signing and the wire's own round-trip tests care
// about) is unaffected either way.

// Tag identifies which Message variant a payload decodes as.
type Tag uint8

const (
	TagJoinDHT                 Tag = 0
	TagConnectNodeSend         Tag = 1
	TagConnectNodeReport       Tag = 2
	TagAlreadyConnected        Tag = 3
	TagFindSuccessorSend       Tag = 4
	TagFindSuccessorReport     Tag = 5
	TagNotifyPredecessorSend   Tag = 6
	TagNotifyPredecessorReport Tag = 7
	TagCustomMessage           Tag = 8
)

// Message is implemented by every variant of the tagged union.
type Message interface {
	wireTag() Tag
}

type JoinDHT struct {
	Id identity.Did
}

func (JoinDHT) wireTag() Tag { return TagJoinDHT }

type ConnectNodeSend struct {
	SenderID      identity.Did
	TargetID      identity.Did
	HandshakeInfo string
}

func (ConnectNodeSend) wireTag() Tag { return TagConnectNodeSend }

type ConnectNodeReport struct {
	AnswerID      identity.Did
	HandshakeInfo string
}

func (ConnectNodeReport) wireTag() Tag { return TagConnectNodeReport }

type AlreadyConnected struct {
	AnswerID identity.Did
}

func (AlreadyConnected) wireTag() Tag { return TagAlreadyConnected }

type FindSuccessorSend struct {
	Id     identity.Did
	ForFix bool
}

func (FindSuccessorSend) wireTag() Tag { return TagFindSuccessorSend }

type FindSuccessorReport struct {
	Id     identity.Did
	ForFix bool
}

func (FindSuccessorReport) wireTag() Tag { return TagFindSuccessorReport }

type NotifyPredecessorSend struct {
	Id identity.Did
}

func (NotifyPredecessorSend) wireTag() Tag { return TagNotifyPredecessorSend }

type NotifyPredecessorReport struct {
	Id identity.Did
}

func (NotifyPredecessorReport) wireTag() Tag { return TagNotifyPredecessorReport }

// CustomMessage carries an application-defined payload between two nodes
// that may not be directly connected. It is routed the same way
// ConnectNodeSend is: forwarded hop by hop toward TargetID via
// closest_preceding_node until it arrives, then delivered locally with no
// implicit reply.
type CustomMessage struct {
	SenderID identity.Did
	TargetID identity.Did
	Bytes    []byte
}

func (CustomMessage) wireTag() Tag { return TagCustomMessage }

// taggedMessage is the actual CBOR shape on the wire: a 2-element map keyed
// by small integers so the encoding stays compact, with the variant's own
// fields deferred into RawMessage until the tag tells us which concrete
// type to decode them as.
type taggedMessage struct {
	Tag     Tag             `cbor:"0,keyasint"`
	Payload cbor.RawMessage `cbor:"1,keyasint"`
}

// EncodeMessage serializes msg into its canonical wire bytes.
func EncodeMessage(msg Message) ([]byte, error) {
	payload, err := cbor.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("wire: encode message payload: %w", err)
	}
	out, err := cbor.Marshal(taggedMessage{Tag: msg.wireTag(), Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("wire: encode tagged message: %w", err)
	}
	return out, nil
}

// DecodeMessage parses wire bytes produced by EncodeMessage back into the
// concrete Message variant the tag names.
func DecodeMessage(b []byte) (Message, error) {
	var tm taggedMessage
	if err := cbor.Unmarshal(b, &tm); err != nil {
		return nil, fmt.Errorf("wire: decode tagged message: %w", err)
	}

	var msg Message
	switch tm.Tag {
	case TagJoinDHT:
		var m JoinDHT
		msg = &m
	case TagConnectNodeSend:
		var m ConnectNodeSend
		msg = &m
	case TagConnectNodeReport:
		var m ConnectNodeReport
		msg = &m
	case TagAlreadyConnected:
		var m AlreadyConnected
		msg = &m
	case TagFindSuccessorSend:
		var m FindSuccessorSend
		msg = &m
	case TagFindSuccessorReport:
		var m FindSuccessorReport
		msg = &m
	case TagNotifyPredecessorSend:
		var m NotifyPredecessorSend
		msg = &m
	case TagNotifyPredecessorReport:
		var m NotifyPredecessorReport
		msg = &m
	case TagCustomMessage:
		var m CustomMessage
		msg = &m
	default:
		return nil, fmt.Errorf("wire: unknown message tag %d", tm.Tag)
	}

	if err := cbor.Unmarshal(tm.Payload, msg); err != nil {
		return nil, fmt.Errorf("wire: decode message payload for tag %d: %w", tm.Tag, err)
	}
	return derefMessage(msg), nil
}

// derefMessage turns the *T our decode switch builds back into the plain T
// value type that EncodeMessage accepts, so callers always hold the same
// kind of value regardless of whether it came from encode or decode.
func derefMessage(msg Message) Message {
	switch m := msg.(type) {
	case *JoinDHT:
		return *m
	case *ConnectNodeSend:
		return *m
	case *ConnectNodeReport:
		return *m
	case *AlreadyConnected:
		return *m
	case *FindSuccessorSend:
		return *m
	case *FindSuccessorReport:
		return *m
	case *NotifyPredecessorSend:
		return *m
	case *NotifyPredecessorReport:
		return *m
	case *CustomMessage:
		return *m
	default:
		return msg
	}
}
